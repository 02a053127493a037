// Package prometheus renders magiclink engine metrics for Prometheus.
//
// [NewPrometheusExporter] accepts a [magiclink.Engine] and exposes an [http.Handler]
// that renders all counters and latency histograms in Prometheus text exposition format.
// Counter names are prefixed magiclink_*_total; histograms are
// magiclink_issue_latency_seconds and magiclink_consume_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
