package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocations stores revoked session ids until their original expiry.
type RedisRevocations struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRevocations builds a Redis backed revocation list.
func NewRedisRevocations(client redis.UniversalClient) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: "session:revoked:", now: time.Now}
}

// Revoke marks id as revoked until the given time.
func (r *RedisRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	if id == "" {
		return errors.New("session: revoke requires id")
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+id, "1", ttl).Err(); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether id has been revoked.
func (r *RedisRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	err := r.client.Get(ctx, r.prefix+id).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, fmt.Errorf("session: revocation lookup: %w", err)
}
