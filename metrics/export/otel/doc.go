// Package otel publishes authcore engine metrics through an OpenTelemetry
// metric.Meter.
//
// Counters become Int64ObservableCounter instruments. The latency histogram
// is reported as cumulative bucket counts on an Int64ObservableGauge keyed by
// an "le" attribute. One callback reads the engine snapshot per collection.
// The caller owns the MeterProvider.
package otel
