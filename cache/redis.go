package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a shared cache tier backed by a Redis client.
//
// It is intended as the middle tier in a Tiered cache: slower than the
// in-process tier but visible to every instance.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates a Redis-backed cache tier.
// All keys are stored under the given prefix (may be empty).
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get retrieves a value. Returns (nil, false) on miss or any client error;
// a shared-tier outage must degrade to a miss, never to a failure.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores a value with the given TTL. TTL<=0 means no caching.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Delete removes a value. Idempotent - no error on miss.
func (c *Redis) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, c.prefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Ensure Redis implements Cache
var _ Cache = (*Redis)(nil)
