package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records admission and resilience metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording is best-effort.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one guarded dependency call with duration and error status.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordDecision records one admission decision for a subject.
	RecordDecision(ctx context.Context, subject string, allowed bool, reason string)

	// RecordStateChange records one circuit breaker state transition.
	RecordStateChange(ctx context.Context, dependency, from, to string)

	// RecordRetry records one scheduled retry against a dependency.
	RecordRetry(ctx context.Context, dependency string)

	// RecordRecovered records one call that succeeded after retries.
	RecordRecovered(ctx context.Context, dependency string)

	// RecordDeadLetter records one failure routed to the dead-letter sink.
	RecordDeadLetter(ctx context.Context, dependency, severity string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter           metric.Meter
	callCount       metric.Int64Counter
	callErrors      metric.Int64Counter
	callDuration    metric.Float64Histogram
	decisionCount   metric.Int64Counter
	transitionCount metric.Int64Counter
	retryCount      metric.Int64Counter
	recoveredCount  metric.Int64Counter
	deadLetterCount metric.Int64Counter
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	callCount, err := meter.Int64Counter(
		"gatekeep.calls.total",
		metric.WithDescription("Total number of guarded dependency calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	callErrors, err := meter.Int64Counter(
		"gatekeep.calls.errors",
		metric.WithDescription("Total number of guarded calls that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	callDuration, err := meter.Float64Histogram(
		"gatekeep.call.duration_ms",
		metric.WithDescription("Guarded call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	decisionCount, err := meter.Int64Counter(
		"gatekeep.admission.decisions",
		metric.WithDescription("Total number of admission decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	transitionCount, err := meter.Int64Counter(
		"gatekeep.breaker.transitions",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"gatekeep.retry.attempts",
		metric.WithDescription("Total number of scheduled retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	recoveredCount, err := meter.Int64Counter(
		"gatekeep.retry.recovered",
		metric.WithDescription("Total number of calls that succeeded after retries"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	deadLetterCount, err := meter.Int64Counter(
		"gatekeep.deadletter.records",
		metric.WithDescription("Total number of failures routed to the dead-letter sink"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:           meter,
		callCount:       callCount,
		callErrors:      callErrors,
		callDuration:    callDuration,
		decisionCount:   decisionCount,
		transitionCount: transitionCount,
		retryCount:      retryCount,
		recoveredCount:  recoveredCount,
		deadLetterCount: deadLetterCount,
	}, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("dependency", meta.Dependency),
	}
	if meta.Operation != "" {
		attrs = append(attrs, attribute.String("operation", meta.Operation))
	}

	opt := metric.WithAttributes(attrs...)

	m.callCount.Add(ctx, 1, opt)
	if err != nil {
		m.callErrors.Add(ctx, 1, opt)
	}
	m.callDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordDecision(ctx context.Context, subject string, allowed bool, reason string) {
	attrs := []attribute.KeyValue{
		attribute.String("subject", subject),
		attribute.Bool("allowed", allowed),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.decisionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsImpl) RecordStateChange(ctx context.Context, dependency, from, to string) {
	m.transitionCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, dependency string) {
	m.retryCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
	))
}

func (m *metricsImpl) RecordRecovered(ctx context.Context, dependency string) {
	m.recoveredCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
	))
}

func (m *metricsImpl) RecordDeadLetter(ctx context.Context, dependency, severity string) {
	m.deadLetterCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
		attribute.String("severity", severity),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
}
func (m *noopMetrics) RecordDecision(ctx context.Context, subject string, allowed bool, reason string) {
}
func (m *noopMetrics) RecordStateChange(ctx context.Context, dependency, from, to string) {}
func (m *noopMetrics) RecordRetry(ctx context.Context, dependency string)                 {}
func (m *noopMetrics) RecordRecovered(ctx context.Context, dependency string)             {}
func (m *noopMetrics) RecordDeadLetter(ctx context.Context, dependency, severity string)  {}
