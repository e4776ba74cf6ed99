package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	limiter, err := NewLimiter(NewMemoryStore(time.Minute, clock.Now), 3, clock.Now)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, int64(3-i), res.Remaining)
	}

	clock.Advance(20 * time.Second)
	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)

	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clock.Advance(40 * time.Second)
	res, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Count)
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewLimiter(NewMemoryStore(time.Minute, nil), 50, nil)
	require.NoError(t, err)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(ctx, "shared")
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), allowed.Load())
}

func TestMemoryStoreSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(time.Second, clock.Now)
	for i := 0; i < sweepEvery-1; i++ {
		_, err := store.Increment(ctx, fmt.Sprintf("ip-%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, sweepEvery-1, store.Len())

	clock.Advance(2 * time.Second)
	_, err := store.Increment(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Reset(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestRedisLimiterWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	store := NewRedisStore(client, "test:rl:", time.Minute, clock.Now)
	limiter, err := NewLimiter(store, 2, clock.Now)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.9")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.Allow(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)
	assert.Equal(t, time.Minute, mr.TTL("test:rl:10.0.0.9"))

	mr.FastForward(time.Minute)
	res, err = limiter.Allow(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx))
	assert.False(t, mr.Exists("test:rl:10.0.0.9"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	limiter, err := NewLimiter(NewRedisStore(client, "", time.Minute, nil), 1, nil)
	require.NoError(t, err)
	res, err := limiter.Allow(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, res.Allowed)
}

func TestNewLimiterValidates(t *testing.T) {
	_, err := NewLimiter(nil, 1, nil)
	assert.Error(t, err)
	_, err = NewLimiter(NewMemoryStore(time.Second, nil), 0, nil)
	assert.Error(t, err)
}
