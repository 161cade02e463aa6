// Package prometheus provides Prometheus exposition for authgate metrics.
//
// [NewPrometheusExporter] accepts an [authgate.Engine] and exposes an
// [http.Handler] that renders all engine counters and the validation
// latency histogram in Prometheus text exposition format. Counter names
// are prefixed authgate_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
