// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package config loads and validates application configuration.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, CONFIG_PATH override)
//  3. Environment variables
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// ReadTimeout bounds the full request read, including the audio body.
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout is the drain window for in-flight uploads on SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects and parameterizes the audio storage strategy.
type StorageConfig struct {
	// Strategy is one of "discard", "filesystem", "database".
	Strategy string `koanf:"strategy"`

	// Root is the base directory for filesystem storage.
	Root string `koanf:"root"`

	// MaxAudioBytes caps a single audio payload. Requests above the cap are
	// rejected before any bytes are written.
	MaxAudioBytes int64 `koanf:"max_audio_bytes"`

	// MinAudioBytes rejects implausibly small payloads (truncated uploads).
	MinAudioBytes int64 `koanf:"min_audio_bytes"`
}

// DatabaseConfig selects the call repository backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default, pure Go) or "postgres".
	Driver string `koanf:"driver"`

	// Path is the SQLite database file path.
	Path string `koanf:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `koanf:"dsn"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// SecurityConfig holds API keys and rate limiting settings.
type SecurityConfig struct {
	// APIKeys lists the accepted upload credentials. An empty list puts the
	// server in open mode: every key is accepted. Open mode is logged as a
	// warning at startup.
	APIKeys []APIKeyConfig `koanf:"api_keys"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// APIKeyConfig is one configured upload credential with optional scope
// restrictions. Empty restriction lists mean unrestricted.
type APIKeyConfig struct {
	Key         string `koanf:"key"`
	Description string `koanf:"description"`

	// AllowedIPs accepts bare addresses ("10.0.0.1") and CIDR prefixes
	// ("10.0.0.0/24").
	AllowedIPs []string `koanf:"allowed_ips"`

	// AllowedSystems restricts the numeric system IDs this key may upload for.
	AllowedSystems []string `koanf:"allowed_systems"`
}

// RateLimitConfig configures the three sliding-window horizons applied
// independently per API key and per source IP. A zero value disables that
// horizon.
type RateLimitConfig struct {
	Disabled  bool `koanf:"disabled"`
	PerMinute int  `koanf:"per_minute"`
	PerHour   int  `koanf:"per_hour"`
	PerDay    int  `koanf:"per_day"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
