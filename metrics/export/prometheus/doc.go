// Package prometheus exposes goGate engine metrics through
// client_golang.
//
// [Collector] turns each [goGate.Engine.MetricsSnapshot] into constant
// metrics at scrape time. [Exporter] wraps it in a private registry and
// serves it with promhttp. Counter names are gogate_*_total; the single
// histogram is gogate_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
