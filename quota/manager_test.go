package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingStore wraps a CounterStore and counts reads.
type countingStore struct {
	CounterStore
	mu         sync.Mutex
	gets       int
	increments int
}

func (s *countingStore) Get(ctx context.Context, key BucketKey) (UsageRecord, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.CounterStore.Get(ctx, key)
}

func (s *countingStore) ConditionalIncrement(ctx context.Context, key BucketKey, limits Limits, op string) (UsageRecord, bool, error) {
	s.mu.Lock()
	s.increments++
	s.mu.Unlock()
	return s.CounterStore.ConditionalIncrement(ctx, key, limits, op)
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// failingStore fails every operation.
type failingStore struct{ err error }

func (s *failingStore) ConditionalIncrement(context.Context, BucketKey, Limits, string) (UsageRecord, bool, error) {
	return UsageRecord{}, false, s.err
}

func (s *failingStore) Get(context.Context, BucketKey) (UsageRecord, error) {
	return UsageRecord{}, s.err
}

// racingStore refuses increments against exhausted counts while its
// re-reads already see rolled-over counters.
type racingStore struct {
	refusedWith UsageRecord
	reread      UsageRecord
}

func (s *racingStore) ConditionalIncrement(context.Context, BucketKey, Limits, string) (UsageRecord, bool, error) {
	return s.refusedWith, false, nil
}

func (s *racingStore) Get(context.Context, BucketKey) (UsageRecord, error) {
	return s.reread, nil
}

// cancelAwareStore fails reads when the supplied context is done.
type cancelAwareStore struct{ rec UsageRecord }

func (s *cancelAwareStore) ConditionalIncrement(ctx context.Context, _ BucketKey, _ Limits, _ string) (UsageRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return UsageRecord{}, false, err
	}
	return s.rec, true, nil
}

func (s *cancelAwareStore) Get(ctx context.Context, _ BucketKey) (UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return UsageRecord{}, err
	}
	return s.rec, nil
}

// recordingCache is a minimal shared-tier fake that counts writes.
type recordingCache struct {
	mu      sync.Mutex
	sets    int
	entries map[string][]byte
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]byte)}
}

func (c *recordingCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *recordingCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	return nil
}

func (c *recordingCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func TestNewManager_NilStore(t *testing.T) {
	if _, err := NewManager(nil, ManagerConfig{}); !errors.Is(err, ErrNilStore) {
		t.Errorf("NewManager(nil) error = %v, want ErrNilStore", err)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(NewMemoryStore(), ManagerConfig{Limits: Limits{Daily: 1}})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if m.config.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", m.config.CacheTTL)
	}
	if m.config.LocalCacheSize != 1000 {
		t.Errorf("LocalCacheSize = %d, want 1000", m.config.LocalCacheSize)
	}
}

func TestManager_CheckAndIncrement_DailyScenario(t *testing.T) {
	m, _ := NewManager(NewMemoryStore(), ManagerConfig{Limits: Limits{Daily: 2, Monthly: 100}})
	ctx := context.Background()

	for i, wantCount := range []int64{1, 2} {
		d, err := m.CheckAndIncrement(ctx, "u1", "query")
		if err != nil {
			t.Fatalf("call %d: error = %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d: Allowed = false, want true", i+1)
		}
		if d.Info.DailyUsed != wantCount {
			t.Errorf("call %d: DailyUsed = %d, want %d", i+1, d.Info.DailyUsed, wantCount)
		}
	}

	d, err := m.CheckAndIncrement(ctx, "u1", "query")
	if err != nil {
		t.Fatalf("third call: error = %v", err)
	}
	if d.Allowed {
		t.Error("third call: Allowed = true, want false")
	}
	if d.Reason != LimitDaily {
		t.Errorf("third call: Reason = %v, want daily", d.Reason)
	}
	if d.Info.DailyUsed != 2 {
		t.Errorf("third call: DailyUsed = %d, want 2 (no mutation on refusal)", d.Info.DailyUsed)
	}
}

func TestManager_CheckAndIncrement_MonthlyReason(t *testing.T) {
	store := NewMemoryStore()
	m, _ := NewManager(store, ManagerConfig{Limits: Limits{Daily: 10, Monthly: 1}})
	ctx := context.Background()

	if d, _ := m.CheckAndIncrement(ctx, "u1", "query"); !d.Allowed {
		t.Fatal("first call refused")
	}

	d, err := m.CheckAndIncrement(ctx, "u1", "query")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if d.Allowed || d.Reason != LimitMonthly {
		t.Errorf("Decision = %+v, want refused with monthly reason", d)
	}
}

func TestManager_CheckAndIncrement_RereadRaceKeepsTrueReason(t *testing.T) {
	// The store refused against an exhausted monthly window, but by the
	// time the refusal is re-read the counters have rolled over. The
	// decision must fall back to the counts the store refused, not guess
	// a daily exhaustion.
	store := &racingStore{
		refusedWith: UsageRecord{SubjectID: "u1", DailyCount: 3, MonthlyCount: 5},
		reread:      UsageRecord{SubjectID: "u1"},
	}
	m, _ := NewManager(store, ManagerConfig{Limits: Limits{Daily: 10, Monthly: 5}})

	d, err := m.CheckAndIncrement(context.Background(), "u1", "query")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if d.Allowed {
		t.Fatal("Allowed = true, want refused")
	}
	if d.Reason != LimitMonthly {
		t.Errorf("Reason = %v, want monthly", d.Reason)
	}
}

func TestManager_CheckFast_ReadDetachedFromCallerCancel(t *testing.T) {
	// The collapsed store read is shared by every concurrent caller: one
	// caller backing out must not turn everyone's check into a tracking
	// failure.
	store := &cancelAwareStore{rec: UsageRecord{SubjectID: "u1", DailyCount: 1}}
	m, _ := NewManager(store, ManagerConfig{Limits: Limits{Daily: 10}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := m.CheckFast(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckFast() error = %v, want nil", err)
	}
	if !d.Allowed {
		t.Errorf("Allowed = false, want true")
	}
	if d.Info.DailyUsed != 1 {
		t.Errorf("DailyUsed = %d, want 1", d.Info.DailyUsed)
	}
}

func TestManager_CheckAndIncrement_Atomicity(t *testing.T) {
	m, _ := NewManager(NewMemoryStore(), ManagerConfig{Limits: Limits{Daily: 5, Monthly: 100}})
	ctx := context.Background()

	const callers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.CheckAndIncrement(ctx, "u1", "query")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Errorf("allowed = %d, want exactly min(25, 5) = 5", allowed)
	}

	d, err := m.CheckFast(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckFast() error = %v", err)
	}
	if d.Info.DailyUsed != 5 {
		t.Errorf("final DailyUsed = %d, want 5", d.Info.DailyUsed)
	}
}

func TestManager_CheckFast_ServesFromCache(t *testing.T) {
	store := &countingStore{CounterStore: NewMemoryStore()}
	m, _ := NewManager(store, ManagerConfig{Limits: Limits{Daily: 5}})
	ctx := context.Background()

	first, err := m.CheckFast(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckFast() error = %v", err)
	}

	// Repeated checks within the TTL hit the cache, not the store.
	for i := 0; i < 4; i++ {
		d, err := m.CheckFast(ctx, "u1")
		if err != nil {
			t.Fatalf("CheckFast() error = %v", err)
		}
		if d.Info != first.Info {
			t.Errorf("Info changed across cached reads: %+v vs %+v", d.Info, first.Info)
		}
	}

	if got := store.getCount(); got != 1 {
		t.Errorf("store reads = %d, want 1", got)
	}
}

func TestManager_CheckFast_DoesNotMutate(t *testing.T) {
	store := NewMemoryStore()
	m, _ := NewManager(store, ManagerConfig{Limits: Limits{Daily: 5}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.CheckFast(ctx, "u1"); err != nil {
			t.Fatalf("CheckFast() error = %v", err)
		}
	}

	rec, _ := store.Get(ctx, DayKey("u1", time.Now()))
	if rec.DailyCount != 0 {
		t.Errorf("DailyCount = %d after CheckFast calls, want 0", rec.DailyCount)
	}
}

func TestManager_IncrementInvalidatesCache(t *testing.T) {
	store := &countingStore{CounterStore: NewMemoryStore()}
	m, _ := NewManager(store, ManagerConfig{Limits: Limits{Daily: 5}})
	ctx := context.Background()

	// Prime the cache at count 0.
	if _, err := m.CheckFast(ctx, "u1"); err != nil {
		t.Fatalf("CheckFast() error = %v", err)
	}

	if _, err := m.CheckAndIncrement(ctx, "u1", "query"); err != nil {
		t.Fatalf("CheckAndIncrement() error = %v", err)
	}

	// The cached entry was invalidated, so the next read re-fetches and
	// reflects the increment.
	d, err := m.CheckFast(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckFast() error = %v", err)
	}
	if d.Info.DailyUsed != 1 {
		t.Errorf("DailyUsed = %d after increment, want 1", d.Info.DailyUsed)
	}
	if got := store.getCount(); got != 2 {
		t.Errorf("store reads = %d, want 2 (one per cache fill)", got)
	}
}

func TestManager_SharedCacheTierBackfilled(t *testing.T) {
	shared := newRecordingCache()
	m, _ := NewManager(NewMemoryStore(), ManagerConfig{
		Limits:      Limits{Daily: 5},
		SharedCache: shared,
	})

	if _, err := m.CheckFast(context.Background(), "u1"); err != nil {
		t.Fatalf("CheckFast() error = %v", err)
	}
	if shared.sets == 0 {
		t.Error("shared tier never written on store read")
	}
}

func TestManager_FailClosed(t *testing.T) {
	cause := errors.New("store down")
	var hookErr error
	m, _ := NewManager(&failingStore{err: cause}, ManagerConfig{
		Limits:          Limits{Daily: 5},
		FailurePolicy:   FailClosed,
		OnTrackingError: func(err error) { hookErr = err },
	})

	d, err := m.CheckAndIncrement(context.Background(), "u1", "query")
	if d.Allowed {
		t.Error("Allowed = true under FailClosed outage, want false")
	}
	if !errors.Is(err, ErrTracking) {
		t.Errorf("error = %v, want ErrTracking", err)
	}
	if hookErr == nil {
		t.Error("OnTrackingError not called")
	}
}

func TestManager_FailOpen(t *testing.T) {
	cause := errors.New("store down")
	var hookErr error
	m, _ := NewManager(&failingStore{err: cause}, ManagerConfig{
		Limits:          Limits{Daily: 5},
		FailurePolicy:   FailOpen,
		OnTrackingError: func(err error) { hookErr = err },
	})

	d, err := m.CheckAndIncrement(context.Background(), "u1", "query")
	if err != nil {
		t.Fatalf("error = %v, want nil under FailOpen", err)
	}
	if !d.Allowed {
		t.Error("Allowed = false under FailOpen outage, want true")
	}
	if !d.Degraded {
		t.Error("Degraded = false, want true")
	}
	if !errors.Is(d.TrackingErr, ErrTracking) {
		t.Errorf("TrackingErr = %v, want ErrTracking", d.TrackingErr)
	}
	if hookErr == nil {
		t.Error("OnTrackingError not called")
	}
}

func TestManager_MissingSubject(t *testing.T) {
	m, _ := NewManager(NewMemoryStore(), ManagerConfig{Limits: Limits{Daily: 1}})

	if _, err := m.CheckFast(context.Background(), ""); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("CheckFast(\"\") error = %v, want ErrMissingSubject", err)
	}
	if _, err := m.CheckAndIncrement(context.Background(), "", "query"); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("CheckAndIncrement(\"\") error = %v, want ErrMissingSubject", err)
	}
}

func TestManager_DayRolloverResetsDaily(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	m, _ := NewManager(store, ManagerConfig{
		Limits: Limits{Daily: 1, Monthly: 100},
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return current
		},
	})
	ctx := context.Background()

	if d, _ := m.CheckAndIncrement(ctx, "u1", "query"); !d.Allowed {
		t.Fatal("first call refused")
	}
	if d, _ := m.CheckAndIncrement(ctx, "u1", "query"); d.Allowed {
		t.Fatal("second call allowed past daily limit")
	}

	// Day rolls over: the new bucket key starts fresh.
	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()

	d, err := m.CheckAndIncrement(ctx, "u1", "query")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if !d.Allowed {
		t.Error("Allowed = false after day rollover, want true")
	}
	if d.Info.DailyUsed != 1 {
		t.Errorf("DailyUsed = %d, want 1", d.Info.DailyUsed)
	}
	if d.Info.MonthlyUsed != 2 {
		t.Errorf("MonthlyUsed = %d, want 2 (carried across the day)", d.Info.MonthlyUsed)
	}
}
