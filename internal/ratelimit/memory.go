package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type entry struct {
	count       int64
	windowStart time.Time
}

// MemoryStore keeps counters in process memory. It suits single instance
// deployments; counters are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]*entry
	calls   int
}

// NewMemoryStore builds a MemoryStore with the given window length.
func NewMemoryStore(window time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{window: window, now: now, entries: make(map[string]*entry)}
}

// Increment bumps key, starting a new window when the previous one elapsed.
func (s *MemoryStore) Increment(_ context.Context, key string) (Window, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls%sweepEvery == 0 {
		s.sweep(now)
	}

	e, ok := s.entries[key]
	if !ok || !now.Before(e.windowStart.Add(s.window)) {
		e = &entry{windowStart: now}
		s.entries[key] = e
	}
	e.count++
	return Window{Count: e.count, ResetAt: e.windowStart.Add(s.window)}, nil
}

// Reset drops every counter.
func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
	return nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.windowStart.Add(s.window)) {
			delete(s.entries, key)
		}
	}
}
