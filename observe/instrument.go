package observe

import (
	"context"
	"time"
)

// Op is the signature for guarded dependency calls.
type Op func(ctx context.Context) error

// Instrumentation bundles tracing, metrics, and logging around the
// admission and resilience layers. Its methods take plain strings so the
// quota and resilience packages stay free of telemetry imports; callers
// adapt their hook signatures, e.g.:
//
//	cfg.OnStateChange = func(dep string, from, to resilience.State) {
//	    ins.BreakerStateChange(ctx, dep, from.String(), to.String())
//	}
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation creates an Instrumentation with the given components.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	return &Instrumentation{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// InstrumentationFromObserver creates an Instrumentation from an Observer.
func InstrumentationFromObserver(obs Observer) (*Instrumentation, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewInstrumentation(newTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap wraps a guarded call with a span, call metrics, and a completion log.
// Errors from the wrapped call are recorded and propagated unchanged.
func (i *Instrumentation) Wrap(meta CallMeta, op Op) Op {
	return func(ctx context.Context) error {
		ctx, span := i.tracer.StartSpan(ctx, meta)
		start := time.Now()

		err := op(ctx)

		duration := time.Since(start)
		i.tracer.EndSpan(span, err)
		i.metrics.RecordCall(ctx, meta, duration, err)

		callLogger := i.logger.WithCall(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			callLogger.Error(ctx, "call failed", fields...)
		} else {
			callLogger.Info(ctx, "call completed", fields...)
		}

		return err
	}
}

// Decision records one admission decision.
func (i *Instrumentation) Decision(ctx context.Context, subject string, allowed bool, reason string) {
	i.metrics.RecordDecision(ctx, subject, allowed, reason)
	if !allowed {
		i.logger.Info(ctx, "admission refused",
			Field{Key: "subject", Value: subject},
			Field{Key: "reason", Value: reason},
		)
	}
}

// BreakerStateChange records one circuit breaker transition.
func (i *Instrumentation) BreakerStateChange(ctx context.Context, dependency, from, to string) {
	i.metrics.RecordStateChange(ctx, dependency, from, to)
	i.logger.Warn(ctx, "breaker state changed",
		Field{Key: "dependency", Value: dependency},
		Field{Key: "from", Value: from},
		Field{Key: "to", Value: to},
	)
}

// RetryScheduled records one scheduled retry.
func (i *Instrumentation) RetryScheduled(ctx context.Context, dependency string, attempt int, delay time.Duration, err error) {
	i.metrics.RecordRetry(ctx, dependency)
	i.logger.Debug(ctx, "retry scheduled",
		Field{Key: "dependency", Value: dependency},
		Field{Key: "attempt", Value: attempt},
		Field{Key: "delay_ms", Value: float64(delay.Milliseconds())},
		Field{Key: "error", Value: err.Error()},
	)
}

// Recovered records one call that succeeded after retries.
func (i *Instrumentation) Recovered(ctx context.Context, dependency string, attempts int) {
	i.metrics.RecordRecovered(ctx, dependency)
	i.logger.Info(ctx, "call recovered",
		Field{Key: "dependency", Value: dependency},
		Field{Key: "attempts", Value: attempts},
	)
}

// DeadLetter records one failure routed to the dead-letter sink.
func (i *Instrumentation) DeadLetter(ctx context.Context, dependency, operation, severity string) {
	i.metrics.RecordDeadLetter(ctx, dependency, severity)
	i.logger.Error(ctx, "failure dead-lettered",
		Field{Key: "dependency", Value: dependency},
		Field{Key: "operation", Value: operation},
		Field{Key: "severity", Value: severity},
	)
}

// TrackingError records a usage tracking failure in the quota layer.
func (i *Instrumentation) TrackingError(ctx context.Context, subject string, err error) {
	i.logger.Error(ctx, "usage tracking failed",
		Field{Key: "subject", Value: subject},
		Field{Key: "error", Value: err.Error()},
	)
}
