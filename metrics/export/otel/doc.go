// Package otel provides OpenTelemetry metric bindings for goGate counters and
// the resolve latency histogram.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter
// and an Int64ObservableGauge per histogram bucket. A single callback reads
// [goGate.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
