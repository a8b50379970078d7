// Package config provides configuration management for codecrow.
package config

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rostilos/codecrow/internal/errors"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// CrowDir is the codecrow configuration directory
	CrowDir = ".codecrow"
	// EnvPrefix is the prefix for configuration environment variables
	EnvPrefix = "CODECROW"
)

// StorageConfig defines persistence settings.
type StorageConfig struct {
	// Dialect selects the store backend: "sqlite" (default) or "postgres".
	Dialect string `yaml:"dialect"`

	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `yaml:"dsn"`
}

// LockConfig defines branch-lock acquisition behavior.
type LockConfig struct {
	// MaxWait is how long a caller waits for the branch lock before the
	// analysis fails with ANALYSIS_LOCKED.
	MaxWait time.Duration `yaml:"max_wait"`

	// PollInterval is the delay between lock acquisition attempts.
	PollInterval time.Duration `yaml:"poll_interval"`

	// TTL is how long a lock row stays authoritative without release.
	// Expired rows may be taken over by a new holder.
	TTL time.Duration `yaml:"ttl"`
}

// AiConfig defines the analysis-service connection.
type AiConfig struct {
	// Endpoint is the base URL of the AI analysis service.
	Endpoint string `yaml:"endpoint"`

	// APIKeyEnvVar names the environment variable carrying the API key.
	// Default: CODECROW_AI_TOKEN.
	APIKeyEnvVar string `yaml:"api_key_env_var,omitempty"`

	// TokenLimit is the prompt token ceiling for one analysis call.
	TokenLimit int `yaml:"token_limit"`

	// Timeout bounds a single analysis round-trip.
	Timeout time.Duration `yaml:"timeout"`
}

// RagConfig defines the retrieval-index service connection.
type RagConfig struct {
	// Enabled turns retrieval-index updates on for this deployment.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the base URL of the index service.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout bounds index-service round-trips.
	Timeout time.Duration `yaml:"timeout"`
}

// VcsConfig defines per-provider connection settings.
type VcsConfig struct {
	// BaseURL for self-hosted instances (GitLab, Bitbucket Server,
	// GitHub Enterprise). Empty for the cloud endpoints.
	BaseURL string `yaml:"base_url,omitempty"`

	// TokenEnvVar overrides the default token environment variable name.
	TokenEnvVar string `yaml:"token_env_var,omitempty"`

	// Timeout bounds a single VCS round-trip.
	Timeout time.Duration `yaml:"timeout"`
}

// Config represents the codecrow configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Lock settings
	Lock LockConfig `yaml:"lock"`

	// AI analysis service settings
	Ai AiConfig `yaml:"ai"`

	// Retrieval-index service settings
	Rag RagConfig `yaml:"rag"`

	// Per-provider VCS settings keyed by provider tag
	// (bitbucket_cloud, github, gitlab, bitbucket_server).
	Vcs map[string]VcsConfig `yaml:"vcs,omitempty"`

	// Ignore lists doublestar globs removed from the changed-file set
	// before synchronization and reconciliation.
	Ignore []string `yaml:"ignore,omitempty"`

	// Workers is the dispatcher pool size for concurrent analyses.
	Workers int `yaml:"workers"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Dialect: "sqlite",
			DSN:     ".codecrow/codecrow.db",
		},
		Lock: LockConfig{
			MaxWait:      30 * time.Second,
			PollInterval: 500 * time.Millisecond,
			TTL:          10 * time.Minute,
		},
		Ai: AiConfig{
			APIKeyEnvVar: "CODECROW_AI_TOKEN",
			TokenLimit:   100_000,
			Timeout:      5 * time.Minute,
		},
		Rag: RagConfig{
			Timeout: 2 * time.Minute,
		},
		Workers: 4,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Storage.Dialect {
	case "sqlite", "postgres":
	default:
		return errors.ErrConfigInvalid("storage.dialect", "must be sqlite or postgres")
	}
	if c.Lock.MaxWait <= 0 {
		return errors.ErrConfigInvalid("lock.max_wait", "must be positive")
	}
	if c.Lock.PollInterval <= 0 {
		return errors.ErrConfigInvalid("lock.poll_interval", "must be positive")
	}
	if c.Lock.TTL < c.Lock.MaxWait {
		return errors.ErrConfigInvalid("lock.ttl", "must be at least lock.max_wait")
	}
	if c.Ai.TokenLimit <= 0 {
		return errors.ErrConfigInvalid("ai.token_limit", "must be positive")
	}
	if c.Workers <= 0 {
		return errors.ErrConfigInvalid("workers", "must be positive")
	}
	for _, pattern := range c.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return errors.ErrConfigInvalid("ignore", "invalid glob pattern "+pattern)
		}
	}
	return nil
}

// Ignored reports whether a changed file path matches any configured
// ignore glob. Invalid patterns were rejected by Validate.
func (c *Config) Ignored(path string) bool {
	for _, pattern := range c.Ignore {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
