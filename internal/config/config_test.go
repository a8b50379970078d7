package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sqlite", cfg.Storage.Dialect)
	assert.Equal(t, 30*time.Second, cfg.Lock.MaxWait)
	assert.Equal(t, 500*time.Millisecond, cfg.Lock.PollInterval)
	assert.Equal(t, 100_000, cfg.Ai.TokenLimit)
	assert.Equal(t, 4, cfg.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"postgres dialect", func(c *Config) { c.Storage.Dialect = "postgres" }, false},
		{"bad dialect", func(c *Config) { c.Storage.Dialect = "oracle" }, true},
		{"zero max wait", func(c *Config) { c.Lock.MaxWait = 0 }, true},
		{"zero poll interval", func(c *Config) { c.Lock.PollInterval = 0 }, true},
		{"ttl below max wait", func(c *Config) { c.Lock.TTL = time.Second }, true},
		{"zero token limit", func(c *Config) { c.Ai.TokenLimit = 0 }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"bad ignore glob", func(c *Config) { c.Ignore = []string{"[unclosed"} }, true},
		{"good ignore glob", func(c *Config) { c.Ignore = []string{"vendor/**"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIgnored(t *testing.T) {
	cfg := Default()
	cfg.Ignore = []string{"vendor/**", "**/*.generated.go", "dist/*"}

	assert.True(t, cfg.Ignored("vendor/lib/a.go"))
	assert.True(t, cfg.Ignored("pkg/api/types.generated.go"))
	assert.True(t, cfg.Ignored("dist/bundle.js"))
	assert.False(t, cfg.Ignored("internal/core/main.go"))
	assert.False(t, cfg.Ignored("vendored.go"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
version: 1
storage:
  dialect: postgres
  dsn: postgres://localhost/codecrow
ai:
  endpoint: https://ai.internal.example
  token_limit: 50000
ignore:
  - vendor/**
workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Dialect)
	assert.Equal(t, "postgres://localhost/codecrow", cfg.Storage.DSN)
	assert.Equal(t, "https://ai.internal.example", cfg.Ai.Endpoint)
	assert.Equal(t, 50_000, cfg.Ai.TokenLimit)
	assert.Equal(t, 8, cfg.Workers)
	// Unset fields keep defaults.
	assert.Equal(t, 30*time.Second, cfg.Lock.MaxWait)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [not a map"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODECROW_STORAGE_DIALECT", "postgres")
	t.Setenv("CODECROW_AI_TOKEN_LIMIT", "12345")
	t.Setenv("CODECROW_LOCK_MAX_WAIT", "5s")

	cfg := Default()
	applyEnvVars(cfg)

	assert.Equal(t, "postgres", cfg.Storage.Dialect)
	assert.Equal(t, 12345, cfg.Ai.TokenLimit)
	assert.Equal(t, 5*time.Second, cfg.Lock.MaxWait)
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("CODECROW_AI_TOKEN_LIMIT", "not-a-number")
	t.Setenv("CODECROW_LOCK_MAX_WAIT", "soon")

	cfg := Default()
	applyEnvVars(cfg)

	assert.Equal(t, 100_000, cfg.Ai.TokenLimit)
	assert.Equal(t, 30*time.Second, cfg.Lock.MaxWait)
}
