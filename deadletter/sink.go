package deadletter

import (
	"context"
	"errors"
	"fmt"
)

// ErrNilSink indicates a nil Sink was supplied.
var ErrNilSink = errors.New("deadletter: sink is nil")

// Sink is the dead-letter boundary.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: each method is best-effort and independent; a failure in one
//   must not prevent the others from being attempted by Dispatch.
type Sink interface {
	// Enqueue places the record on the failure queue.
	Enqueue(ctx context.Context, rec FailureRecord) error

	// Persist writes the record to the durable error log.
	Persist(ctx context.Context, rec FailureRecord) error

	// Notify pushes the record to the notification channel. Dispatch
	// gates this on severity; implementations need not re-check.
	Notify(ctx context.Context, rec FailureRecord) error
}

// Dispatch routes one record through the sink: it always enqueues and
// persists, and notifies only for severities that warrant it. All steps
// are attempted; errors are joined.
func Dispatch(ctx context.Context, sink Sink, rec FailureRecord) error {
	if sink == nil {
		return ErrNilSink
	}

	var errs []error
	if err := sink.Enqueue(ctx, rec); err != nil {
		errs = append(errs, fmt.Errorf("deadletter: enqueue %s: %w", rec.ErrorID, err))
	}
	if err := sink.Persist(ctx, rec); err != nil {
		errs = append(errs, fmt.Errorf("deadletter: persist %s: %w", rec.ErrorID, err))
	}
	if rec.Severity.Notifiable() {
		if err := sink.Notify(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("deadletter: notify %s: %w", rec.ErrorID, err))
		}
	}
	return errors.Join(errs...)
}
