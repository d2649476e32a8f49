// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package ratelimit

import (
	"sync"
	"time"
)

// slot is one window's pair of counters. The weighted count interpolates the
// previous slot into the current one, approximating a true sliding window
// without keeping per-request timestamps.
type slot struct {
	start time.Time
	curr  int64
	prev  int64
}

// bucket holds the per-window slots of one identity.
type bucket struct {
	mu       sync.Mutex
	slots    []slot
	lastSeen time.Time
}

// MemoryStore is the in-process Store implementation. Suitable for
// single-instance deployments; counters reset on restart.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	done chan struct{}
	once sync.Once
}

// NewMemoryStore creates an in-memory counter store with a background
// janitor that evicts identities idle for more than two days.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Take records one attempt for identity and returns the weighted count per
// window after the increment.
func (s *MemoryStore) Take(identity string, now time.Time, windows []time.Duration) []float64 {
	b := s.bucket(identity, len(windows))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeen = now

	counts := make([]float64, len(windows))
	for i, window := range windows {
		sl := &b.slots[i]
		slotStart := now.Truncate(window)
		if !sl.start.Equal(slotStart) {
			if sl.start.Equal(slotStart.Add(-window)) {
				sl.prev = sl.curr
			} else {
				sl.prev = 0
			}
			sl.curr = 0
			sl.start = slotStart
		}
		sl.curr++

		weight := 1.0 - float64(now.Sub(slotStart))/float64(window)
		counts[i] = float64(sl.prev)*weight + float64(sl.curr)
	}
	return counts
}

// Reset drops all counters.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

// bucket returns the identity's bucket, creating it if absent.
func (s *MemoryStore) bucket(identity string, nWindows int) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[identity]
	if !ok || len(b.slots) != nWindows {
		b = &bucket{slots: make([]slot, nWindows)}
		s.buckets[identity] = b
	}
	return b
}

// janitor evicts identities that have not been seen for two days, bounding
// memory on long-running processes with high client churn.
func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-48 * time.Hour)
			s.mu.Lock()
			for identity, b := range s.buckets {
				b.mu.Lock()
				idle := b.lastSeen.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(s.buckets, identity)
				}
			}
			s.mu.Unlock()
		}
	}
}
