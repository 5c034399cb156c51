// Package otel binds broker metrics to OpenTelemetry observable instruments.
//
// [NewExporter] creates an Int64ObservableCounter per broker counter and an
// Int64ObservableGauge per histogram bucket. A single callback reads the
// snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate broker state.
package otel
