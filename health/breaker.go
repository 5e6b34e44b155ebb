package health

import (
	"context"
	"fmt"

	"github.com/kmorrisey/gatekeep/resilience"
)

// BreakerChecker reports the health of one circuit breaker. An open circuit
// means the guarded dependency is down, a half-open circuit means it is
// being probed for recovery.
type BreakerChecker struct {
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for the given circuit breaker.
func NewBreakerChecker(breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

// Name returns the guarded dependency's name.
func (c *BreakerChecker) Name() string {
	return c.breaker.Dependency()
}

// Check maps the breaker state to a health status.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	snap := c.breaker.Snapshot()

	details := map[string]any{
		"dependency": snap.Dependency,
		"state":      snap.State.String(),
		"failures":   snap.Failures,
	}
	if !snap.LastFailure.IsZero() {
		details["last_failure"] = snap.LastFailure.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	switch snap.State {
	case resilience.StateOpen:
		return Unhealthy(
			fmt.Sprintf("circuit open after %d failures", snap.Failures),
			ErrCheckFailed,
		).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open, probing for recovery").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}
