// Package cache opens the Redis connection shared by the rate limiter and the session revocation list.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New creates a Redis client and checks it answers within five seconds.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
