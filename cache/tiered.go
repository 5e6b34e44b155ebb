package cache

import (
	"context"
	"time"
)

// Tiered composes an ordered list of cache tiers, outermost first.
//
// Reads walk the tiers in order and back-fill every outer tier with the
// value found at the innermost tier that had to be reached. Writes and
// deletes are applied to every tier; each tier stores its own copy of the
// value, so no entry is ever shared by reference across tiers.
type Tiered struct {
	tiers       []Cache
	backfillTTL time.Duration
}

// DefaultBackfillTTL is the TTL applied to back-filled entries when none
// is configured.
const DefaultBackfillTTL = 5 * time.Minute

// NewTiered creates a tiered cache from the given tiers, outermost first.
// backfillTTL <= 0 falls back to DefaultBackfillTTL.
func NewTiered(backfillTTL time.Duration, tiers ...Cache) *Tiered {
	if backfillTTL <= 0 {
		backfillTTL = DefaultBackfillTTL
	}
	return &Tiered{tiers: tiers, backfillTTL: backfillTTL}
}

// Get walks the tiers in order and returns the first hit, back-filling
// every tier that missed. Returns (nil, false) if all tiers miss.
func (c *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, tier := range c.tiers {
		value, ok := tier.Get(ctx, key)
		if !ok {
			continue
		}

		// Back-fill the outer tiers that missed. Each tier gets its
		// own copy so tiers never alias each other's buffers.
		for j := 0; j < i; j++ {
			_ = c.tiers[j].Set(ctx, key, cloneValue(value), c.backfillTTL)
		}
		return value, true
	}
	return nil, false
}

// Set writes the value to every tier. The first error is returned but all
// tiers are attempted.
func (c *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Set(ctx, key, cloneValue(value), ttl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete removes the key from every tier. Invalidation must reach all
// tiers even if one fails; the first error is returned.
func (c *Tiered) Delete(ctx context.Context, key string) error {
	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Ensure Tiered implements Cache
var _ Cache = (*Tiered)(nil)
