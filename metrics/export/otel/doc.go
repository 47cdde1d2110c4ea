// Package otel binds engine counters and histograms to OpenTelemetry
// observable instruments.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter
// and Int64ObservableGauges per histogram bucket. A single callback
// reads a metrics snapshot on each collection cycle. Callers own the
// MeterProvider and supply the Meter.
package otel
