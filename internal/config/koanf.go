// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/calldrop/config.yaml",
	"/etc/calldrop/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8618,
			ReadTimeout:     5 * time.Minute, // audio bodies can be large on slow links
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Strategy:      "filesystem",
			Root:          "/data/audio",
			MaxAudioBytes: 100 << 20, // 100 MB
			MinAudioBytes: 1 << 10,   // 1 KB
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "/data/calldrop.db",
			DSN:             "",
			MaxOpenConns:    8,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			APIKeys: nil,
			RateLimit: RateLimitConfig{
				Disabled:  false,
				PerMinute: 60,
				PerHour:   1000,
				PerDay:    10000,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
// defaults, then an optional YAML file, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment noise cannot
// pollute the configuration. API keys carry nested restriction lists and are
// configurable only through the config file.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_read_timeout":  "server.read_timeout",
		"http_write_timeout": "server.write_timeout",
		"shutdown_timeout":   "server.shutdown_timeout",

		"storage_strategy": "storage.strategy",
		"storage_root":     "storage.root",
		"audio_max_bytes":  "storage.max_audio_bytes",
		"audio_min_bytes":  "storage.min_audio_bytes",

		"db_driver":             "database.driver",
		"sqlite_path":           "database.path",
		"postgres_dsn":          "database.dsn",
		"db_max_open_conns":     "database.max_open_conns",
		"db_max_idle_conns":     "database.max_idle_conns",
		"db_conn_max_lifetime":  "database.conn_max_lifetime",
		"db_conn_max_idle_time": "database.conn_max_idle_time",

		"disable_rate_limit":    "security.rate_limit.disabled",
		"rate_limit_per_minute": "security.rate_limit.per_minute",
		"rate_limit_per_hour":   "security.rate_limit.per_hour",
		"rate_limit_per_day":    "security.rate_limit.per_day",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
