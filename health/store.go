package health

import (
	"context"
	"time"

	"github.com/kmorrisey/gatekeep/cache"
	"github.com/kmorrisey/gatekeep/quota"
)

// StoreChecker probes a usage counter store with a read for a synthetic
// subject. A reachable store answers the probe even when the subject has
// no recorded usage.
type StoreChecker struct {
	name  string
	store quota.CounterStore
	now   func() time.Time
}

// NewStoreChecker creates a checker for the given counter store.
func NewStoreChecker(name string, store quota.CounterStore) *StoreChecker {
	return &StoreChecker{
		name:  name,
		store: store,
		now:   time.Now,
	}
}

// Name returns the checker name.
func (c *StoreChecker) Name() string {
	return c.name
}

// Check reads the probe subject's usage record.
func (c *StoreChecker) Check(ctx context.Context) Result {
	key := quota.DayKey("healthcheck", c.now())

	if _, err := c.store.Get(ctx, key); err != nil {
		return Unhealthy("counter store unreachable", err)
	}
	return Healthy("counter store reachable")
}

// CacheChecker probes a cache tier with a write/read round trip.
type CacheChecker struct {
	name  string
	cache cache.Cache
}

// NewCacheChecker creates a checker for the given cache.
func NewCacheChecker(name string, c cache.Cache) *CacheChecker {
	return &CacheChecker{name: name, cache: c}
}

// Name returns the checker name.
func (c *CacheChecker) Name() string {
	return c.name
}

// Check writes a probe key and reads it back.
func (c *CacheChecker) Check(ctx context.Context) Result {
	const probeKey = "health:probe"

	if err := c.cache.Set(ctx, probeKey, []byte("ok"), time.Minute); err != nil {
		return Unhealthy("cache write failed", err)
	}
	if _, ok := c.cache.Get(ctx, probeKey); !ok {
		return Degraded("cache probe read missed")
	}
	return Healthy("cache round trip ok")
}
