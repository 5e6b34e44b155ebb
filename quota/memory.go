package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process CounterStore.
//
// Suitable for tests and single-instance deployments; its atomicity
// guarantee holds only within one process.
type MemoryStore struct {
	mu      sync.Mutex
	daily   map[BucketKey]*dailyBucket
	monthly map[string]int64 // subject|month -> count

	// now is injectable for rollover tests.
	now func() time.Time
}

type dailyBucket struct {
	count         int64
	lastOperation string
	lastUpdated   time.Time
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		daily:   make(map[BucketKey]*dailyBucket),
		monthly: make(map[string]int64),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// ConditionalIncrement implements CounterStore.
func (s *MemoryStore) ConditionalIncrement(_ context.Context, key BucketKey, limits Limits, operation string) (UsageRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	monthKey := key.Subject + "|" + key.Month()
	bucket := s.daily[key]
	var daily int64
	if bucket != nil {
		daily = bucket.count
	}
	monthly := s.monthly[monthKey]

	if (limits.Daily > 0 && daily >= limits.Daily) ||
		(limits.Monthly > 0 && monthly >= limits.Monthly) {
		return s.recordLocked(key, daily, monthly, bucket), false, nil
	}

	if bucket == nil {
		bucket = &dailyBucket{}
		s.daily[key] = bucket
	}
	bucket.count++
	bucket.lastOperation = operation
	bucket.lastUpdated = s.now()
	s.monthly[monthKey]++

	return s.recordLocked(key, bucket.count, s.monthly[monthKey], bucket), true, nil
}

// Get implements CounterStore.
func (s *MemoryStore) Get(_ context.Context, key BucketKey) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.daily[key]
	var daily int64
	if bucket != nil {
		daily = bucket.count
	}
	return s.recordLocked(key, daily, s.monthly[key.Subject+"|"+key.Month()], bucket), nil
}

func (s *MemoryStore) recordLocked(key BucketKey, daily, monthly int64, bucket *dailyBucket) UsageRecord {
	rec := UsageRecord{
		SubjectID:    key.Subject,
		BucketDate:   key.Date,
		DailyCount:   daily,
		MonthlyCount: monthly,
	}
	if bucket != nil {
		rec.LastOperation = bucket.lastOperation
		rec.LastUpdated = bucket.lastUpdated
	}
	return rec
}

// Ensure MemoryStore implements CounterStore
var _ CounterStore = (*MemoryStore)(nil)
