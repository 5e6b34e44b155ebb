package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Commands abstracts the minimal command surface needed from a Redis
// client, so tests can run against a fake.
type Commands interface {
	LPush(ctx context.Context, key string, values ...any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Publish(ctx context.Context, channel string, message any) error
}

// WrapClient adapts a go-redis client to the Commands interface.
func WrapClient(client redis.Cmdable) Commands {
	return goRedisCommands{client: client}
}

type goRedisCommands struct {
	client redis.Cmdable
}

func (c goRedisCommands) LPush(ctx context.Context, key string, values ...any) error {
	return c.client.LPush(ctx, key, values...).Err()
}

func (c goRedisCommands) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c goRedisCommands) Publish(ctx context.Context, channel string, message any) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// RedisSinkConfig configures the Redis-backed sink.
type RedisSinkConfig struct {
	// QueueKey is the list holding queued records.
	// Default: "deadletter:queue"
	QueueKey string

	// LogKeyPrefix prefixes the durable per-record log keys.
	// Default: "deadletter:log"
	LogKeyPrefix string

	// Channel is the pub/sub channel for notifications.
	// Default: "deadletter:alerts"
	Channel string

	// Retention is how long persisted records are kept.
	// Default: 30 days
	Retention time.Duration
}

// RedisSink is a Sink backed by Redis: a list for the queue, keyed
// entries with a retention TTL for the durable log, and pub/sub for
// notifications.
type RedisSink struct {
	client Commands
	config RedisSinkConfig
}

// NewRedisSink creates a Redis-backed sink.
func NewRedisSink(client Commands, config RedisSinkConfig) *RedisSink {
	// Apply defaults
	if config.QueueKey == "" {
		config.QueueKey = "deadletter:queue"
	}
	if config.LogKeyPrefix == "" {
		config.LogKeyPrefix = "deadletter:log"
	}
	if config.Channel == "" {
		config.Channel = "deadletter:alerts"
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	return &RedisSink{client: client, config: config}
}

// Enqueue implements Sink.
func (s *RedisSink) Enqueue(ctx context.Context, rec FailureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("deadletter: marshal %s: %w", rec.ErrorID, err)
	}
	return s.client.LPush(ctx, s.config.QueueKey, data)
}

// Persist implements Sink.
func (s *RedisSink) Persist(ctx context.Context, rec FailureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("deadletter: marshal %s: %w", rec.ErrorID, err)
	}
	key := fmt.Sprintf("%s:%s", s.config.LogKeyPrefix, rec.ErrorID)
	return s.client.Set(ctx, key, data, s.config.Retention)
}

// Notify implements Sink.
func (s *RedisSink) Notify(ctx context.Context, rec FailureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("deadletter: marshal %s: %w", rec.ErrorID, err)
	}
	return s.client.Publish(ctx, s.config.Channel, data)
}

// Ensure RedisSink implements Sink
var _ Sink = (*RedisSink)(nil)
