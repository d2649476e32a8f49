// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package config

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Validate checks the configuration for structural errors. It is called by
// Load() after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	switch c.Storage.Strategy {
	case "discard", "database":
	case "filesystem":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the filesystem strategy")
		}
	default:
		return fmt.Errorf("storage.strategy must be one of discard, filesystem, database; got %q", c.Storage.Strategy)
	}

	if c.Storage.MaxAudioBytes <= 0 {
		return fmt.Errorf("storage.max_audio_bytes must be positive, got %d", c.Storage.MaxAudioBytes)
	}
	if c.Storage.MinAudioBytes < 0 || c.Storage.MinAudioBytes >= c.Storage.MaxAudioBytes {
		return fmt.Errorf("storage.min_audio_bytes must be in [0, max_audio_bytes), got %d", c.Storage.MinAudioBytes)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns)
	}

	rl := c.Security.RateLimit
	if rl.PerMinute < 0 || rl.PerHour < 0 || rl.PerDay < 0 {
		return fmt.Errorf("rate limit horizons must be non-negative")
	}

	for i := range c.Security.APIKeys {
		if err := validateAPIKey(&c.Security.APIKeys[i], i); err != nil {
			return err
		}
	}

	return nil
}

// validateAPIKey checks one configured key for an empty secret, malformed
// address restrictions, and non-numeric system restrictions.
func validateAPIKey(kc *APIKeyConfig, idx int) error {
	if strings.TrimSpace(kc.Key) == "" {
		return fmt.Errorf("security.api_keys[%d].key must not be empty", idx)
	}
	for _, addr := range kc.AllowedIPs {
		if strings.Contains(addr, "/") {
			if _, err := netip.ParsePrefix(addr); err != nil {
				return fmt.Errorf("security.api_keys[%d]: invalid CIDR %q: %w", idx, addr, err)
			}
			continue
		}
		if _, err := netip.ParseAddr(addr); err != nil {
			return fmt.Errorf("security.api_keys[%d]: invalid IP %q: %w", idx, addr, err)
		}
	}
	for _, sys := range kc.AllowedSystems {
		if _, err := strconv.ParseInt(sys, 10, 64); err != nil {
			return fmt.Errorf("security.api_keys[%d]: allowed system %q is not numeric", idx, sys)
		}
	}
	return nil
}
