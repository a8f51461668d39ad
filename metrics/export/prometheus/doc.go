// Package prometheus exposes merco engine counters as a prometheus.Collector.
//
// [NewPrometheusExporter] wraps an [merco.Engine]. Register the exporter in
// your own registry, or mount [PrometheusExporter.Handler], which serves it
// from a private one. Counter names are merco_*_total; the single histogram is
// merco_authenticate_latency_seconds.
package prometheus
