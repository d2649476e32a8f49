// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8618, cfg.Server.Port)
	assert.Equal(t, "filesystem", cfg.Storage.Strategy)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 60, cfg.Security.RateLimit.PerMinute)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown strategy", func(c *Config) { c.Storage.Strategy = "tape" }},
		{"filesystem without root", func(c *Config) { c.Storage.Root = "" }},
		{"non-positive max audio", func(c *Config) { c.Storage.MaxAudioBytes = 0 }},
		{"min above max", func(c *Config) { c.Storage.MinAudioBytes = c.Storage.MaxAudioBytes }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"postgres without dsn", func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.DSN = ""
		}},
		{"zero pool", func(c *Config) { c.Database.MaxOpenConns = 0 }},
		{"negative rate limit", func(c *Config) { c.Security.RateLimit.PerHour = -1 }},
		{"empty api key", func(c *Config) {
			c.Security.APIKeys = []APIKeyConfig{{Key: "  "}}
		}},
		{"malformed cidr", func(c *Config) {
			c.Security.APIKeys = []APIKeyConfig{{Key: "k", AllowedIPs: []string{"10.0.0.0/99"}}}
		}},
		{"malformed ip", func(c *Config) {
			c.Security.APIKeys = []APIKeyConfig{{Key: "k", AllowedIPs: []string{"not-an-ip"}}}
		}},
		{"non-numeric system", func(c *Config) {
			c.Security.APIKeys = []APIKeyConfig{{Key: "k", AllowedSystems: []string{"eleven"}}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsScopedKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.APIKeys = []APIKeyConfig{{
		Key:            "secret",
		AllowedIPs:     []string{"10.0.0.1", "203.0.113.0/24"},
		AllowedSystems: []string{"11", "12"},
	}}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  read_timeout: 2m
storage:
  strategy: discard
database:
  driver: sqlite
  path: /tmp/test.db
security:
  api_keys:
    - key: secret
      allowed_systems: ["11"]
  rate_limit:
    per_minute: 5
`), 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.ReadTimeout)
	assert.Equal(t, "discard", cfg.Storage.Strategy)
	assert.Equal(t, 5, cfg.Security.RateLimit.PerMinute)
	require.Len(t, cfg.Security.APIKeys, 1)
	assert.Equal(t, []string{"11"}, cfg.Security.APIKeys[0].AllowedSystems)

	// Unset fields keep their defaults.
	assert.Equal(t, "/data/calldrop.db", cfg.Database.Path)
	assert.Equal(t, 1000, cfg.Security.RateLimit.PerHour)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
storage:
  strategy: discard
`), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadIgnoresUnmappedEnvVars(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PATH_INFO", "/should/not/leak")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8618, cfg.Server.Port)
}

func TestLoadRejectsInvalidMergedConfig(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STORAGE_STRATEGY", "tape")

	_, err := Load()
	require.Error(t, err)
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "server.port", envTransformFunc("HTTP_PORT"))
	assert.Equal(t, "database.dsn", envTransformFunc("POSTGRES_DSN"))
	assert.Equal(t, "", envTransformFunc("HOME"))
}
