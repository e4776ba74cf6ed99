package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript starts the window on the first hit and returns the count
// together with the remaining window in milliseconds.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares counters between instances through Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

// NewRedisStore builds a RedisStore. Keys are namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, window time.Duration, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, prefix: prefix, window: window, now: now}
}

// Increment atomically bumps key inside Redis.
func (s *RedisStore) Increment(ctx context.Context, key string) (Window, error) {
	values, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, s.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) != 2 {
		return Window{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, values)
	}
	return Window{
		Count:   values[0],
		ResetAt: s.now().Add(time.Duration(values[1]) * time.Millisecond),
	}, nil
}

// Reset removes every counter under the store prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
