// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package ratelimit implements sliding-window rate limiting for upload
// attempts, counted independently per API key and per source IP over
// minute, hour and day horizons.
//
// The counter store is injectable so a single-process deployment can use the
// in-memory implementation while multi-instance deployments externalize the
// counters, without the orchestrator changing.
package ratelimit

import (
	"math"
	"time"

	"github.com/calldrop/calldrop/internal/config"
)

// Horizon is one rolling window with its request limit.
type Horizon struct {
	Name   string
	Window time.Duration
	Limit  int
}

// Decision is the outcome of one rate check.
type Decision struct {
	Allowed bool

	// Horizon names the shortest window that tripped, empty when allowed.
	Horizon string

	// RetryAfter hints when the caller may retry. Zero when allowed.
	RetryAfter time.Duration
}

// Store counts attempts per identity. Take records one attempt at now and
// returns the weighted sliding-window count per requested window, in order.
// Implementations must count atomically per identity bucket; attempts are
// never lost under concurrent access.
type Store interface {
	Take(identity string, now time.Time, windows []time.Duration) []float64
	Reset()
}

// Limiter applies the configured horizons to the key and IP identities of
// each request. Both identities are counted on every attempt, including
// attempts that a later pipeline stage rejects; throttling protects against
// volumetric abuse, not just successful uploads.
type Limiter struct {
	store    Store
	horizons []Horizon
	windows  []time.Duration
	disabled bool
	now      func() time.Time
}

// New builds a limiter with an in-memory store from configuration.
// Horizons with a non-positive limit are disabled individually.
func New(cfg config.RateLimitConfig) *Limiter {
	horizons := make([]Horizon, 0, 3)
	if cfg.PerMinute > 0 {
		horizons = append(horizons, Horizon{Name: "minute", Window: time.Minute, Limit: cfg.PerMinute})
	}
	if cfg.PerHour > 0 {
		horizons = append(horizons, Horizon{Name: "hour", Window: time.Hour, Limit: cfg.PerHour})
	}
	if cfg.PerDay > 0 {
		horizons = append(horizons, Horizon{Name: "day", Window: 24 * time.Hour, Limit: cfg.PerDay})
	}
	l := NewWithStore(NewMemoryStore(), horizons)
	l.disabled = cfg.Disabled || len(horizons) == 0
	return l
}

// NewWithStore builds a limiter over an externally provided counter store.
func NewWithStore(store Store, horizons []Horizon) *Limiter {
	windows := make([]time.Duration, len(horizons))
	for i, h := range horizons {
		windows[i] = h.Window
	}
	return &Limiter{
		store:    store,
		horizons: horizons,
		windows:  windows,
		now:      time.Now,
	}
}

// Check records one attempt for the key and IP identities and reports
// whether the request may proceed. The request is throttled when either
// identity exceeds any horizon; the decision carries the shortest tripped
// horizon for the Retry-After hint.
//
// Check is called once per request before any expensive work (body parsing,
// storage) begins.
func (l *Limiter) Check(apiKey, sourceIP string) Decision {
	if l.disabled {
		return Decision{Allowed: true}
	}

	now := l.now()
	decision := Decision{Allowed: true}

	if apiKey != "" {
		l.apply(&decision, l.store.Take("key:"+apiKey, now, l.windows), now)
	}
	if sourceIP != "" {
		l.apply(&decision, l.store.Take("ip:"+sourceIP, now, l.windows), now)
	}
	return decision
}

// Reset clears all counters. Intended for tests and admin tooling.
func (l *Limiter) Reset() {
	l.store.Reset()
}

// apply folds one identity's weighted counts into the decision, keeping the
// shortest tripped horizon across both identities.
func (l *Limiter) apply(decision *Decision, counts []float64, now time.Time) {
	for i, h := range l.horizons {
		if counts[i] <= float64(h.Limit) {
			continue
		}
		retry := retryAfter(h.Window, now)
		if decision.Allowed || retry < decision.RetryAfter {
			decision.Allowed = false
			decision.Horizon = h.Name
			decision.RetryAfter = retry
		}
	}
}

// retryAfter is the time remaining in the current window slot, rounded up
// to a whole second with a one second floor.
func retryAfter(window time.Duration, now time.Time) time.Duration {
	elapsed := now.Sub(now.Truncate(window))
	remaining := window - elapsed
	secs := math.Ceil(remaining.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
