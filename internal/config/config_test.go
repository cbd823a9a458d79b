package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atelier.yaml")
	data := `
server:
  port: 9001
database:
  driver: sqlite
  sqlite:
    path: /tmp/test-atelier.db
gateway:
  model: test-model
convert:
  jpeg_quality: 70
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "/tmp/test-atelier.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "test-model", cfg.Gateway.Model)
	assert.Equal(t, 70, cfg.Convert.JPEGQuality)
	// Untouched sections keep defaults.
	assert.Equal(t, "memory", cfg.Cache.Driver)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ATELIER_SERVER_PORT", "9100")
	t.Setenv("ATELIER_MODEL", "override-model")
	t.Setenv("ATELIER_API_KEYS", "k1,k2")
	t.Setenv("ATELIER_AUTH_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "override-model", cfg.Gateway.Model)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
	assert.True(t, cfg.Auth.Enabled)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"unknown db driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"bad quality", func(c *Config) { c.Convert.JPEGQuality = 0 }},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/atelier.yaml")
	assert.Error(t, err)
}
