// Package observe provides telemetry primitives for the admission and
// resilience layers: OpenTelemetry tracing and metrics plus a structured
// JSON logger. It is a pure instrumentation library with no transport of
// its own; consumers wire Instrumentation callbacks into quota managers
// and resilience executors.
package observe
