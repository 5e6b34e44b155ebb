package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kmorrisey/gatekeep/deadletter"
)

// ExecutorConfig configures a per-dependency executor.
type ExecutorConfig struct {
	// Breaker wraps every attempt when set.
	Breaker *CircuitBreaker

	// Retry is the backoff policy for retryable failures.
	Retry RetryConfig

	// Classifier buckets downstream errors.
	// Default: DefaultClassifier
	Classifier Classifier

	// RetryableClasses restricts which error classes are retried when
	// non-empty; classes not listed are treated as terminal. Empty means
	// each class's own retryability applies.
	RetryableClasses []ErrorClass

	// Sink receives exactly one FailureRecord per terminally-failed
	// call. Optional: without a sink, failures are still returned but
	// not recorded.
	Sink deadletter.Sink

	// AttemptTimeout bounds each individual attempt when positive.
	AttemptTimeout time.Duration

	// Bulkhead caps concurrent calls when set.
	Bulkhead *Bulkhead

	// OnRetry is called before each retry wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// OnRecovered is called when a call succeeds after at least one retry.
	OnRecovered func(attempts int)

	// OnDeadLetter is called after a failure record is dispatched.
	OnDeadLetter func(rec deadletter.FailureRecord)

	// OnSinkError is called when dispatching to the sink itself fails.
	// The original operation error is still returned to the caller.
	OnSinkError func(err error)
}

// Executor orchestrates resilient calls to one downstream dependency:
// bounded retries with a selectable backoff, circuit breaking, error
// classification, and terminal-failure routing to a dead-letter sink.
//
// Callers receive a closed set of outcomes: nil, a CircuitOpenError, a
// bulkhead rejection, a context error, or a ClassifiedError wrapping the
// original downstream failure. A terminal failure is never swallowed.
type Executor struct {
	dependency string
	config     ExecutorConfig
	retry      *Retry
	timeout    *Timeout
}

// NewExecutor creates an executor for the named dependency.
func NewExecutor(dependency string, config ExecutorConfig) *Executor {
	// Apply defaults
	if config.Classifier == nil {
		config.Classifier = DefaultClassifier
	}

	e := &Executor{
		dependency: dependency,
		config:     config,
		retry:      NewRetry(config.Retry),
	}
	if config.AttemptTimeout > 0 {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: config.AttemptTimeout})
	}
	return e
}

// Dependency returns the name of the downstream dependency.
func (e *Executor) Dependency() string {
	return e.dependency
}

// Execute runs the operation with bounded retries.
//
// Retryable failures are retried invisibly up to MaxRetries times. A
// terminal classification or retry exhaustion produces exactly one
// FailureRecord, dispatched to the sink before the classified error is
// returned. Circuit-open and bulkhead rejections propagate immediately
// and are neither retried nor dead-lettered: the operation was never
// invoked.
func (e *Executor) Execute(ctx context.Context, operation string, op func(context.Context) error) error {
	maxRetries := e.retry.Config().MaxRetries

	for attempt := 0; ; attempt++ {
		err := e.attempt(ctx, op)
		if err == nil {
			if attempt > 0 && e.config.OnRecovered != nil {
				e.config.OnRecovered(attempt + 1)
			}
			return nil
		}

		// Local rejections: the dependency was never called.
		var openErr *CircuitOpenError
		if errors.As(err, &openErr) || errors.Is(err, ErrBulkheadFull) {
			return err
		}

		// An externally imposed deadline ends the call immediately.
		if ctx.Err() != nil {
			return fmt.Errorf("resilience: %s %s aborted: %w", e.dependency, operation, ctx.Err())
		}

		class := e.config.Classifier(err)
		if !e.retryable(class) || attempt >= maxRetries {
			return e.fail(ctx, operation, err, class, attempt+1)
		}

		delay := e.retry.Delay(attempt)
		if class.LongBackoff() {
			delay = e.retry.ThrottledDelay(attempt)
		}
		if e.config.OnRetry != nil {
			e.config.OnRetry(attempt+1, err, delay)
		}
		if waitErr := e.retry.Wait(ctx, delay); waitErr != nil {
			return fmt.Errorf("resilience: %s %s aborted: %w", e.dependency, operation, waitErr)
		}
	}
}

func (e *Executor) retryable(class ErrorClass) bool {
	if len(e.config.RetryableClasses) == 0 {
		return class.Retryable()
	}
	for _, c := range e.config.RetryableClasses {
		if c == class {
			return true
		}
	}
	return false
}

func (e *Executor) attempt(ctx context.Context, op func(context.Context) error) error {
	run := op
	if e.timeout != nil {
		inner := run
		run = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}
	if e.config.Breaker != nil {
		inner := run
		run = func(ctx context.Context) error {
			return e.config.Breaker.Execute(ctx, inner)
		}
	}
	if e.config.Bulkhead != nil {
		inner := run
		run = func(ctx context.Context) error {
			return e.config.Bulkhead.Execute(ctx, inner)
		}
	}
	return run(ctx)
}

// fail routes a terminal failure: one record to the sink, the classified
// error to the caller.
func (e *Executor) fail(ctx context.Context, operation string, err error, class ErrorClass, attempts int) error {
	if e.config.Sink != nil {
		rec := deadletter.NewRecord(
			SubjectFromContext(ctx),
			e.dependency,
			operation,
			class.String(),
			err,
			class.Severity(),
		).WithDetails(map[string]any{
			"attempts": attempts,
			"go_type":  fmt.Sprintf("%T", err),
		})

		if dispatchErr := deadletter.Dispatch(ctx, e.config.Sink, rec); dispatchErr != nil {
			if e.config.OnSinkError != nil {
				e.config.OnSinkError(dispatchErr)
			}
		} else if e.config.OnDeadLetter != nil {
			e.config.OnDeadLetter(rec)
		}
	}

	return &ClassifiedError{Class: class, Attempts: attempts, Err: err}
}
