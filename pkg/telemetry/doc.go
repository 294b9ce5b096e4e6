// Package telemetry wires OpenTelemetry tracing and meters plus a Prometheus
// collector for the pipeline runtime.
//
// It centralises tracer provider setup, records per-stage execution metrics for
// transformer chains, and exposes counters for frames tracked and released by
// execution contexts so operators can spot intermediate frames that outlive
// their call.
package telemetry
