package resilience

import (
	"context"
	"sync/atomic"
	"time"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of in-flight operations.
	// Default: 10
	MaxConcurrent int

	// MaxWait is how long to wait for a slot before rejecting.
	// Default: 0 (reject immediately)
	MaxWait time.Duration
}

// Bulkhead caps concurrent operations against one dependency so a slow
// downstream cannot exhaust the caller's resources.
type Bulkhead struct {
	config   BulkheadConfig
	sem      chan struct{}
	rejected atomic.Int64
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	// Apply defaults
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Execute runs the operation inside the bulkhead, returning
// ErrBulkheadFull when no slot frees up within MaxWait.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-b.sem }()
	return op(ctx)
}

// InFlight returns the number of operations currently holding a slot.
func (b *Bulkhead) InFlight() int {
	return len(b.sem)
}

// Rejected returns the count of rejected acquisitions.
func (b *Bulkhead) Rejected() int64 {
	return b.rejected.Load()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}

	if b.config.MaxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	timer := time.NewTimer(b.config.MaxWait)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		b.rejected.Add(1)
		return ctx.Err()
	case <-timer.C:
		b.rejected.Add(1)
		return ErrBulkheadFull
	}
}
