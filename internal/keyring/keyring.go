// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package keyring implements the credential registry for upload
// authentication: API key lookup with optional source-address and
// system-scope restrictions.
package keyring

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/netip"

	"github.com/calldrop/calldrop/internal/config"
)

// Sentinel errors returned by Authorize. Callers distinguish a missing or
// unknown key (401) from a known key used outside its scope (403).
var (
	ErrUnauthenticated = errors.New("missing or unknown API key")
	ErrForbidden       = errors.New("API key not allowed for this source or system")
)

// record is one configured API key with its compiled restrictions.
type record struct {
	id          string
	key         string
	description string
	addrs       []netip.Addr
	prefixes    []netip.Prefix
	systems     map[string]struct{}
}

// Registry holds the configured API keys. Immutable after New; safe for
// concurrent use.
type Registry struct {
	records []record
}

// New compiles the configured keys into a registry. Malformed address
// restrictions are rejected here even though config validation already
// checked them, so a registry can never hold an unparseable restriction.
func New(keys []config.APIKeyConfig) (*Registry, error) {
	r := &Registry{records: make([]record, 0, len(keys))}
	for i, kc := range keys {
		rec := record{
			id:          fmt.Sprintf("key_%d", i),
			key:         kc.Key,
			description: kc.Description,
		}
		for _, addr := range kc.AllowedIPs {
			if prefix, err := netip.ParsePrefix(addr); err == nil {
				rec.prefixes = append(rec.prefixes, prefix)
				continue
			}
			parsed, err := netip.ParseAddr(addr)
			if err != nil {
				return nil, fmt.Errorf("api key %d: invalid allowed address %q: %w", i, addr, err)
			}
			rec.addrs = append(rec.addrs, parsed)
		}
		if len(kc.AllowedSystems) > 0 {
			rec.systems = make(map[string]struct{}, len(kc.AllowedSystems))
			for _, sys := range kc.AllowedSystems {
				rec.systems[sys] = struct{}{}
			}
		}
		r.records = append(r.records, rec)
	}
	return r, nil
}

// OpenMode reports whether no keys are configured, meaning every request is
// accepted. The caller must surface this loudly at startup; open mode is
// never silent.
func (r *Registry) OpenMode() bool {
	return len(r.records) == 0
}

// Authorize checks the presented key against the registry and its scope
// restrictions. It returns the matched key's identifier, or "none" in open
// mode. The decision has no side effects; audit logging is the caller's
// responsibility.
func (r *Registry) Authorize(key, sourceAddr, systemID string) (string, error) {
	if r.OpenMode() {
		return "none", nil
	}

	for i := range r.records {
		rec := &r.records[i]
		if subtle.ConstantTimeCompare([]byte(rec.key), []byte(key)) != 1 {
			continue
		}

		if len(rec.addrs) > 0 || len(rec.prefixes) > 0 {
			if !rec.allowsAddr(sourceAddr) {
				return "", fmt.Errorf("%w: source %s not allowed for %s", ErrForbidden, sourceAddr, rec.id)
			}
		}
		if rec.systems != nil {
			if _, ok := rec.systems[systemID]; !ok {
				return "", fmt.Errorf("%w: system %s not allowed for %s", ErrForbidden, systemID, rec.id)
			}
		}
		return rec.id, nil
	}

	return "", ErrUnauthenticated
}

// allowsAddr reports whether sourceAddr matches any allowed IP or CIDR.
// An unparseable source address never matches.
func (rec *record) allowsAddr(sourceAddr string) bool {
	addr, err := netip.ParseAddr(sourceAddr)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, allowed := range rec.addrs {
		if allowed.Unmap() == addr {
			return true
		}
	}
	for _, prefix := range rec.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
