package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays grow between retries.
type BackoffStrategy int

const (
	// BackoffFixed uses the base delay for every attempt.
	BackoffFixed BackoffStrategy = iota
	// BackoffLinear grows the delay linearly: base * (attempt + 1).
	BackoffLinear
	// BackoffExponential doubles the delay each attempt: base * 2^attempt.
	BackoffExponential
	// BackoffJittered is exponential with up to +/-10% uniform jitter.
	BackoffJittered
)

// String returns the string representation of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	case BackoffJittered:
		return "jittered"
	default:
		return "unknown"
	}
}

// RetryConfig configures the retry policy for one dependency.
type RetryConfig struct {
	// MaxRetries is the retries allowed after the initial attempt, so an
	// operation runs at most MaxRetries+1 times. A negative value
	// disables retries entirely (single attempt).
	// Default: 2
	MaxRetries int

	// BaseDelay is the delay unit the strategy scales.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps every computed delay.
	// Default: 30s
	MaxDelay time.Duration

	// Strategy selects the backoff curve.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter layers +/- base-delay-proportional noise (up to 10% of
	// BaseDelay) on strategies other than BackoffJittered, which already
	// jitters multiplicatively.
	Jitter bool

	// ThrottleMultiplier stretches delays for quota-class errors.
	// Default: 2.0
	ThrottleMultiplier float64
}

// Retry maps retry attempt numbers to wait durations.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry policy.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxRetries == 0 {
		config.MaxRetries = 2
	} else if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.ThrottleMultiplier <= 0 {
		config.ThrottleMultiplier = 2.0
	}

	return &Retry{config: config}
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Delay computes the wait before retry number attempt (0-based, so the
// delay after the first failure is Delay(0)). The result never exceeds
// MaxDelay.
func (r *Retry) Delay(attempt int) time.Duration {
	base := float64(r.config.BaseDelay)
	var delay float64

	switch r.config.Strategy {
	case BackoffFixed:
		delay = base
	case BackoffLinear:
		delay = base * float64(attempt+1)
	case BackoffExponential:
		delay = base * math.Pow(2, float64(attempt))
	case BackoffJittered:
		// Exponential with up to +/-10% multiplicative jitter.
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay = base * math.Pow(2, float64(attempt)) * (0.9 + 0.2*rand.Float64())
	}

	if r.config.Jitter && r.config.Strategy != BackoffJittered {
		// Additive noise proportional to the base delay, never
		// multiplicatively re-applied.
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += base * 0.1 * (2*rand.Float64() - 1)
	}

	if delay < 0 {
		delay = 0
	}
	if capped := float64(r.config.MaxDelay); delay > capped {
		delay = capped
	}
	return time.Duration(delay)
}

// ThrottledDelay is Delay stretched by the throttle multiplier, still
// capped at MaxDelay. Used for quota-class errors.
func (r *Retry) ThrottledDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.Delay(attempt)) * r.config.ThrottleMultiplier)
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

// Wait sleeps for the given delay without blocking other goroutines,
// aborting promptly if the context is done.
func (r *Retry) Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
