// Package health provides health checking for the admission layer's
// moving parts: circuit breakers, counter stores, and caches.
//
// A Checker reports the health of one component as Healthy, Degraded, or
// Unhealthy. Aggregator combines checkers into a composite check and the
// HTTP handlers expose liveness and readiness probes.
//
//	agg := health.NewAggregator()
//	agg.Register("billing-breaker", health.NewBreakerChecker(breaker))
//	agg.Register("usage-store", health.NewStoreChecker("usage-store", store))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
package health
