// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calldrop/calldrop/internal/config"
)

func fixedLimiter(store Store, horizons []Horizon, now time.Time) *Limiter {
	l := NewWithStore(store, horizons)
	l.now = func() time.Time { return now }
	return l
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	l := New(config.RateLimitConfig{PerMinute: 5, PerHour: 100, PerDay: 1000})

	for i := 0; i < 5; i++ {
		d := l.Check("alpha", "203.0.113.7")
		require.True(t, d.Allowed, "attempt %d", i)
		assert.Empty(t, d.Horizon)
		assert.Zero(t, d.RetryAfter)
	}
}

func TestCheckThrottlesOverLimit(t *testing.T) {
	l := New(config.RateLimitConfig{PerMinute: 2})

	l.Check("alpha", "203.0.113.7")
	l.Check("alpha", "203.0.113.7")
	d := l.Check("alpha", "203.0.113.7")

	require.False(t, d.Allowed)
	assert.Equal(t, "minute", d.Horizon)
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestCheckCountsKeyAndIPIndependently(t *testing.T) {
	l := New(config.RateLimitConfig{PerMinute: 2})

	// Same key from two addresses: the key identity trips even though
	// neither IP identity is over its own limit.
	l.Check("alpha", "203.0.113.1")
	l.Check("alpha", "203.0.113.2")
	d := l.Check("alpha", "203.0.113.3")
	assert.False(t, d.Allowed)

	l.Reset()

	// Same IP with rotating keys: the IP identity trips.
	l.Check("k1", "203.0.113.7")
	l.Check("k2", "203.0.113.7")
	d = l.Check("k3", "203.0.113.7")
	assert.False(t, d.Allowed)
}

func TestCheckDisabled(t *testing.T) {
	l := New(config.RateLimitConfig{Disabled: true, PerMinute: 1})

	for i := 0; i < 10; i++ {
		assert.True(t, l.Check("alpha", "203.0.113.7").Allowed)
	}
}

func TestCheckNoHorizonsMeansDisabled(t *testing.T) {
	l := New(config.RateLimitConfig{})
	assert.True(t, l.Check("alpha", "203.0.113.7").Allowed)
}

func TestCheckReportsShortestTrippedHorizon(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	store := NewMemoryStore()
	defer store.Close()

	l := fixedLimiter(store, []Horizon{
		{Name: "minute", Window: time.Minute, Limit: 1},
		{Name: "hour", Window: time.Hour, Limit: 1},
	}, now)

	l.Check("alpha", "")
	d := l.Check("alpha", "")

	require.False(t, d.Allowed)
	assert.Equal(t, "minute", d.Horizon)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestMemoryStoreWeightedWindow(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	windows := []time.Duration{time.Minute}
	base := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	// Fill the first slot.
	for i := 0; i < 4; i++ {
		s.Take("id", base.Add(time.Duration(i)*time.Second), windows)
	}

	// Halfway into the next slot the previous slot contributes half weight:
	// 4*0.5 + 1 = 3.
	counts := s.Take("id", base.Add(90*time.Second), windows)
	assert.InDelta(t, 3.0, counts[0], 0.01)
}

func TestMemoryStoreForgetsStaleSlots(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	windows := []time.Duration{time.Minute}
	base := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		s.Take("id", base, windows)
	}

	// Two full windows later the old slot no longer counts.
	counts := s.Take("id", base.Add(2*time.Minute), windows)
	assert.InDelta(t, 1.0, counts[0], 0.01)
}

func TestMemoryStoreIdentitiesAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	windows := []time.Duration{time.Minute}
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	s.Take("a", now, windows)
	s.Take("a", now, windows)
	counts := s.Take("b", now, windows)
	assert.InDelta(t, 1.0, counts[0], 0.01)
}

func TestMemoryStoreConcurrentTake(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	windows := []time.Duration{time.Minute}
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				s.Take("shared", now, windows)
			}
		}()
	}
	wg.Wait()

	// The next take observes every prior attempt; none were lost.
	counts := s.Take("shared", now, windows)
	assert.InDelta(t, float64(goroutines*perGoroutine+1), counts[0], 0.01)
}

func TestRetryAfterFloorsAtOneSecond(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 59, int(900*time.Millisecond), time.UTC)
	assert.Equal(t, time.Second, retryAfter(time.Minute, now))
}
