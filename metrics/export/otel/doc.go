// Package otel publishes merco engine counters through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. The caller owns the
// MeterProvider and its readers.
package otel
