package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with layered overrides.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. System config (/etc/codecrow/config.yaml) - optional
//  3. User config (~/.codecrow/config.yaml) - optional
//  4. Project config (.codecrow/config.yaml) - optional
//  5. Environment variables (CODECROW_*)
func Load() (*Config, error) {
	cfg := Default()

	systemPath := "/etc/codecrow/config.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		if err := mergeFromFile(cfg, systemPath); err != nil {
			slog.Warn("failed to load system config", "path", systemPath, "error", err)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, CrowDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := filepath.Join(CrowDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(cfg, projectPath); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from one explicit file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := mergeFromFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnvVars(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFromFile merges configuration from a YAML file into cfg.
// Unset fields keep their current (default or lower-layer) values because
// yaml.Unmarshal only writes keys present in the document.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvVars applies CODECROW_* environment overrides.
func applyEnvVars(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_STORAGE_DIALECT"); v != "" {
		cfg.Storage.Dialect = v
	}
	if v := os.Getenv(EnvPrefix + "_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvPrefix + "_AI_ENDPOINT"); v != "" {
		cfg.Ai.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "_AI_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ai.TokenLimit = n
		} else {
			slog.Warn("ignoring invalid token limit override", "value", v)
		}
	}
	if v := os.Getenv(EnvPrefix + "_RAG_ENDPOINT"); v != "" {
		cfg.Rag.Endpoint = v
		cfg.Rag.Enabled = true
	}
	if v := os.Getenv(EnvPrefix + "_LOCK_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Lock.MaxWait = d
		} else {
			slog.Warn("ignoring invalid lock max wait override", "value", v)
		}
	}
	if v := os.Getenv(EnvPrefix + "_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
}
