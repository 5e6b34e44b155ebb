package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Evaler abstracts the minimal scripting surface needed from a Redis
// client, so tests can run against a fake.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
}

// WrapClient adapts a go-redis client to the Evaler interface.
func WrapClient(client redis.Cmdable) Evaler {
	return goRedisEvaler{client: client}
}

type goRedisEvaler struct {
	client redis.Cmdable
}

func (e goRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return e.client.Eval(ctx, script, keys, args...).Result()
}

// RedisStoreConfig configures the Redis-backed counter store.
type RedisStoreConfig struct {
	// KeyPrefix namespaces all counter keys.
	// Default: "usage"
	KeyPrefix string

	// DailyTTL is the retention of a day bucket.
	// Default: 32 days
	DailyTTL time.Duration

	// MonthlyTTL is the retention of a month bucket.
	// Default: 40 days
	MonthlyTTL time.Duration
}

// RedisStore is a CounterStore backed by Redis.
//
// The conditional increment runs as a single Lua script so the
// check-then-increment over both windows is atomic across instances.
// Bucket retention is enforced with key TTLs.
type RedisStore struct {
	client Evaler
	config RedisStoreConfig
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client Evaler, config RedisStoreConfig) *RedisStore {
	// Apply defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "usage"
	}
	if config.DailyTTL <= 0 {
		config.DailyTTL = 32 * 24 * time.Hour
	}
	if config.MonthlyTTL <= 0 {
		config.MonthlyTTL = 40 * 24 * time.Hour
	}
	return &RedisStore{client: client, config: config}
}

// incrementScript checks both windows and increments both, atomically.
// Returns {applied, daily, monthly}; on refusal the pre-increment counts.
const incrementScript = `
local daily = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local monthly = tonumber(redis.call('HGET', KEYS[2], 'count') or '0')
local dlimit = tonumber(ARGV[1])
local mlimit = tonumber(ARGV[2])
if (dlimit > 0 and daily >= dlimit) or (mlimit > 0 and monthly >= mlimit) then
  return {0, daily, monthly}
end
daily = redis.call('HINCRBY', KEYS[1], 'count', 1)
monthly = redis.call('HINCRBY', KEYS[2], 'count', 1)
redis.call('HSET', KEYS[1], 'last_op', ARGV[3], 'updated', ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[5])
redis.call('EXPIRE', KEYS[2], ARGV[6])
return {1, daily, monthly}
`

// readScript returns {daily, monthly, last_op, updated} for a bucket.
const readScript = `
local daily = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local monthly = tonumber(redis.call('HGET', KEYS[2], 'count') or '0')
local lastOp = redis.call('HGET', KEYS[1], 'last_op') or ''
local updated = tonumber(redis.call('HGET', KEYS[1], 'updated') or '0')
return {daily, monthly, lastOp, updated}
`

// ConditionalIncrement implements CounterStore.
func (s *RedisStore) ConditionalIncrement(ctx context.Context, key BucketKey, limits Limits, operation string) (UsageRecord, bool, error) {
	keys := []string{s.dayKey(key), s.monthKey(key)}
	args := []any{
		limits.Daily,
		limits.Monthly,
		operation,
		time.Now().Unix(),
		int(s.config.DailyTTL.Seconds()),
		int(s.config.MonthlyTTL.Seconds()),
	}

	reply, err := s.client.Eval(ctx, incrementScript, keys, args...)
	if err != nil {
		return UsageRecord{}, false, fmt.Errorf("quota: conditional increment %s: %w", key.Subject, err)
	}

	fields, err := replySlice(reply, 3)
	if err != nil {
		return UsageRecord{}, false, err
	}

	applied := toInt64(fields[0]) == 1
	rec := UsageRecord{
		SubjectID:    key.Subject,
		BucketDate:   key.Date,
		DailyCount:   toInt64(fields[1]),
		MonthlyCount: toInt64(fields[2]),
	}
	if applied {
		rec.LastOperation = operation
	}
	return rec, applied, nil
}

// Get implements CounterStore.
func (s *RedisStore) Get(ctx context.Context, key BucketKey) (UsageRecord, error) {
	reply, err := s.client.Eval(ctx, readScript, []string{s.dayKey(key), s.monthKey(key)})
	if err != nil {
		return UsageRecord{}, fmt.Errorf("quota: read %s: %w", key.Subject, err)
	}

	fields, err := replySlice(reply, 4)
	if err != nil {
		return UsageRecord{}, err
	}

	rec := UsageRecord{
		SubjectID:    key.Subject,
		BucketDate:   key.Date,
		DailyCount:   toInt64(fields[0]),
		MonthlyCount: toInt64(fields[1]),
	}
	if op, ok := fields[2].(string); ok {
		rec.LastOperation = op
	}
	if updated := toInt64(fields[3]); updated > 0 {
		rec.LastUpdated = time.Unix(updated, 0).UTC()
	}
	return rec, nil
}

func (s *RedisStore) dayKey(key BucketKey) string {
	return fmt.Sprintf("%s:%s:%s", s.config.KeyPrefix, key.Subject, key.Date)
}

func (s *RedisStore) monthKey(key BucketKey) string {
	return fmt.Sprintf("%s:%s:%s", s.config.KeyPrefix, key.Subject, key.Month())
}

func replySlice(reply any, want int) ([]any, error) {
	fields, ok := reply.([]any)
	if !ok || len(fields) < want {
		return nil, fmt.Errorf("quota: unexpected script reply %T", reply)
	}
	return fields, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

// Ensure RedisStore implements CounterStore
var _ CounterStore = (*RedisStore)(nil)
