package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/kmorrisey/gatekeep/deadletter"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRetriesExhausted is returned when max retry attempts are exhausted.
	ErrRetriesExhausted = errors.New("resilience: max retries exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// CircuitOpenError is the rejection returned while a breaker is open.
// It matches ErrCircuitOpen under errors.Is.
type CircuitOpenError struct {
	// Dependency is the breaker's dependency name.
	Dependency string

	// RetryAfter suggests how long to wait before the breaker will
	// allow a probe. Zero means "retry shortly".
	RetryAfter time.Duration
}

// Error implements error.
func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("resilience: circuit %q open, retry after %s", e.Dependency, e.RetryAfter)
	}
	return fmt.Sprintf("resilience: circuit %q open", e.Dependency)
}

// Is reports a match for the ErrCircuitOpen sentinel.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// ClassifiedError wraps a downstream error with its classification and the
// number of attempts made. It is what callers see on a terminal failure or
// after retries are exhausted; the original error remains reachable via
// errors.Unwrap/Is/As.
type ClassifiedError struct {
	Class    ErrorClass
	Attempts int
	Err      error
}

// Error implements error.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("resilience: %s after %d attempt(s): %v", e.Class, e.Attempts, e.Err)
}

// Unwrap returns the original downstream error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Is reports a match for ErrRetriesExhausted when the failure survived at
// least one retry.
func (e *ClassifiedError) Is(target error) bool {
	return target == ErrRetriesExhausted && e.Attempts > 1
}

// Severity returns the severity of the wrapped failure.
func (e *ClassifiedError) Severity() deadletter.Severity {
	return e.Class.Severity()
}
