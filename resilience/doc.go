// Package resilience protects calls to unreliable downstream dependencies.
//
// The package provides the following building blocks:
//
//   - Circuit Breaker: a per-dependency fault-detector state machine that
//     stops calling a failing dependency for a cooldown period.
//
//   - Retry: backoff policies (fixed, linear, exponential, jittered)
//     mapping attempt numbers to wait durations.
//
//   - Classification: an injectable classifier that buckets errors into
//     retryable and terminal classes, so retry decisions branch on data
//     rather than on backend-specific error types.
//
//   - Executor: the per-dependency orchestrator. It runs an operation
//     through the breaker with bounded retries, and on exhaustion or a
//     terminal classification builds exactly one failure record and hands
//     it to a dead-letter sink before returning the classified error.
//
//   - Timeout and Bulkhead: per-attempt deadline and concurrency caps.
//
// # Usage
//
//	breaker := resilience.NewCircuitBreaker("transcribe", resilience.CircuitBreakerConfig{
//	    FailureThreshold: 3,
//	    OpenTimeout:      30 * time.Second,
//	})
//
//	exec := resilience.NewExecutor("transcribe", resilience.ExecutorConfig{
//	    Breaker: breaker,
//	    Retry: resilience.RetryConfig{
//	        MaxRetries: 2,
//	        BaseDelay:  time.Second,
//	        Strategy:   resilience.BackoffExponential,
//	    },
//	    Sink: sink,
//	})
//
//	err := exec.Execute(ctx, "submit", func(ctx context.Context) error {
//	    return client.Submit(ctx, job)
//	})
//
// Each executor and breaker is an explicit instance; nothing in this
// package holds global state. Breaker state is shared only within one
// process; deployments that need cross-instance breaker state must back
// it with a shared store, which is outside this package's scope.
package resilience
