package quota

import "context"

// CounterStore is the durable counter boundary.
//
// Contract:
// - ConditionalIncrement must be atomic across processes: under concurrent
//   calls for the same key, exactly the calls that observe both counters
//   strictly below their limits may increment. No in-process lock
//   substitutes for this; the store is the single arbiter of the race.
// - Get returns the current counts, or a zero-valued record carrying the
//   key fields when the bucket does not exist yet.
// - Counter retention (bucket TTLs) is owned by the store implementation.
type CounterStore interface {
	// ConditionalIncrement increments both the daily and monthly counters
	// by one iff daily < limits.Daily and monthly < limits.Monthly
	// (limits <= 0 are unlimited). It returns the post-increment record
	// and applied=true on success, or the pre-increment counts and
	// applied=false when a limit blocked the write.
	ConditionalIncrement(ctx context.Context, key BucketKey, limits Limits, operation string) (UsageRecord, bool, error)

	// Get reads the current counts for the bucket.
	Get(ctx context.Context, key BucketKey) (UsageRecord, error)
}
