package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kmorrisey/gatekeep/cache"
)

// FailurePolicy decides what an admission check does when the counter
// store is unreachable. It is an explicit configuration value, never
// inferred per call.
type FailurePolicy int

const (
	// FailClosed refuses admission on a store outage. The caller gets an
	// error wrapping ErrTracking, distinguishable from "quota exceeded".
	FailClosed FailurePolicy = iota
	// FailOpen admits the call on a store outage and reports the outage
	// through Decision.Degraded/TrackingErr and the OnTrackingError hook.
	// Usage during the outage is not durably counted.
	FailOpen
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Limits are the per-subject admission limits.
	Limits Limits

	// CacheTTL bounds the staleness CheckFast may serve.
	// Default: 5 minutes
	CacheTTL time.Duration

	// LocalCacheSize bounds the in-process tier.
	// Default: 1000 entries
	LocalCacheSize int

	// SharedCache is an optional distributed tier between the local
	// cache and the store.
	SharedCache cache.Cache

	// FailurePolicy selects fail-open or fail-closed on store outages.
	// Default: FailClosed
	FailurePolicy FailurePolicy

	// OnTrackingError is called when the store is unreachable.
	OnTrackingError func(err error)

	// Now is the clock used for bucket derivation. Test hook.
	// Default: time.Now
	Now func() time.Time
}

// Manager enforces per-subject quotas with tiered read-through caching.
//
// CheckFast is a read-only, cache-permitted check for display paths.
// CheckAndIncrement is the admission primitive; it delegates the
// check-then-increment race to the CounterStore's conditional write and
// invalidates cached usage on success.
type Manager struct {
	store  CounterStore
	tiers  *cache.Tiered
	config ManagerConfig
	group  singleflight.Group
}

// NewManager creates a quota manager over the given counter store.
func NewManager(store CounterStore, config ManagerConfig) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	// Apply defaults
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.LocalCacheSize <= 0 {
		config.LocalCacheSize = cache.DefaultMemoryCapacity
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	tiers := []cache.Cache{cache.NewMemory(config.LocalCacheSize)}
	if config.SharedCache != nil {
		tiers = append(tiers, config.SharedCache)
	}

	return &Manager{
		store:  store,
		tiers:  cache.NewTiered(config.CacheTTL, tiers...),
		config: config,
	}, nil
}

// CheckFast answers an admission check without mutating any counter.
//
// It serves from the cache tiers when a fresh entry exists and may be
// stale by at most CacheTTL. Concurrent misses for the same subject are
// collapsed into a single store read.
func (m *Manager) CheckFast(ctx context.Context, subject string) (Decision, error) {
	if subject == "" {
		return Decision{}, ErrMissingSubject
	}

	key := DayKey(subject, m.config.Now())
	cacheKey := usageCacheKey(key)

	if data, ok := m.tiers.Get(ctx, cacheKey); ok {
		var rec UsageRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return m.decide(rec), nil
		}
		// Corrupt entry: drop it and fall through to the store.
		_ = m.tiers.Delete(ctx, cacheKey)
	}

	res, err, _ := m.group.Do(cacheKey, func() (any, error) {
		// The read is shared by every collapsed waiter; detach it from
		// the first caller's cancellation so one caller backing out
		// does not fail the rest.
		rctx := context.WithoutCancel(ctx)
		rec, err := m.store.Get(rctx, key)
		if err != nil {
			return UsageRecord{}, err
		}
		if data, err := json.Marshal(rec); err == nil {
			_ = m.tiers.Set(rctx, cacheKey, data, m.config.CacheTTL)
		}
		return rec, nil
	})
	if err != nil {
		return m.trackingFailure(key, err)
	}

	return m.decide(res.(UsageRecord)), nil
}

// CheckAndIncrement atomically admits and records one operation.
//
// Under concurrent calls for the same subject, exactly the calls that keep
// both windows strictly below their limits succeed; the store's
// conditional write arbitrates the race. On success the cached usage for
// the bucket is invalidated on every tier. On refusal the authoritative
// counts are re-read to report which limit was hit; the cause is never
// guessed from a stale cache entry.
func (m *Manager) CheckAndIncrement(ctx context.Context, subject, operation string) (Decision, error) {
	if subject == "" {
		return Decision{}, ErrMissingSubject
	}

	key := DayKey(subject, m.config.Now())

	rec, applied, err := m.store.ConditionalIncrement(ctx, key, m.config.Limits, operation)
	if err != nil {
		return m.trackingFailure(key, err)
	}

	if applied {
		_ = m.tiers.Delete(ctx, usageCacheKey(key))
		return Decision{Allowed: true, Info: info(rec, m.config.Limits)}, nil
	}

	// Refused: re-read the store for the authoritative reason and backfill
	// the cache so CheckFast refuses without waiting out a stale TTL.
	current, err := m.store.Get(ctx, key)
	if err != nil {
		current = rec
	} else if data, mErr := json.Marshal(current); mErr == nil {
		_ = m.tiers.Set(ctx, usageCacheKey(key), data, m.config.CacheTTL)
	}
	decision := m.decide(current)
	if decision.Allowed {
		// Counts moved between the refusal and the re-read; the refusal
		// itself is still authoritative, so report against the counts
		// the store refused.
		decision = m.decide(rec)
		decision.Allowed = false
	}
	return decision, nil
}

// Invalidate drops the cached usage for a subject's current bucket.
func (m *Manager) Invalidate(ctx context.Context, subject string) error {
	return m.tiers.Delete(ctx, usageCacheKey(DayKey(subject, m.config.Now())))
}

func (m *Manager) decide(rec UsageRecord) Decision {
	allowed, reason := evaluate(rec, m.config.Limits)
	return Decision{Allowed: allowed, Reason: reason, Info: info(rec, m.config.Limits)}
}

func (m *Manager) trackingFailure(key BucketKey, cause error) (Decision, error) {
	err := fmt.Errorf("%w: %w", ErrTracking, cause)
	if m.config.OnTrackingError != nil {
		m.config.OnTrackingError(err)
	}

	blank := UsageRecord{SubjectID: key.Subject, BucketDate: key.Date}
	if m.config.FailurePolicy == FailOpen {
		return Decision{
			Allowed:     true,
			Info:        info(blank, m.config.Limits),
			Degraded:    true,
			TrackingErr: err,
		}, nil
	}
	return Decision{Info: info(blank, m.config.Limits)}, err
}

func usageCacheKey(key BucketKey) string {
	return "quota:" + key.Subject + ":" + key.Date
}
