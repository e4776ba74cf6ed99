// Package ratelimit implements fixed-window request counters keyed by client.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps failures of the backing counter store.
var ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

// Window is the state of a counter after an increment.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// Store increments per-key counters inside a fixed window. Increment must be
// atomic per key: concurrent callers observe distinct counts.
type Store interface {
	Increment(ctx context.Context, key string) (Window, error)
	Reset(ctx context.Context) error
}

// Result is the outcome of a limiter check.
type Result struct {
	Allowed    bool
	Count      int64
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter enforces a ceiling on a Store.
type Limiter struct {
	store Store
	limit int64
	now   func() time.Time
}

// NewLimiter allows limit requests per key and store window.
func NewLimiter(store Store, limit int, now func() time.Time) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store required")
	}
	if limit <= 0 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, limit: int64(limit), now: now}, nil
}

// Allow records one request for key and reports whether it fits the ceiling.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	w, err := l.store.Increment(ctx, key)
	if err != nil {
		return Result{Allowed: true, Limit: l.limit}, err
	}
	res := Result{
		Allowed: w.Count <= l.limit,
		Count:   w.Count,
		Limit:   l.limit,
	}
	if res.Allowed {
		res.Remaining = l.limit - w.Count
		return res, nil
	}
	res.RetryAfter = w.ResetAt.Sub(l.now())
	if res.RetryAfter < time.Second {
		res.RetryAfter = time.Second
	}
	return res, nil
}

// Reset clears every counter.
func (l *Limiter) Reset(ctx context.Context) error {
	return l.store.Reset(ctx)
}
