// Package otel publishes pveauth client metrics through OpenTelemetry observable
// instruments.
//
// Series match the prometheus package: outcome and result are attributes on one
// counter each, and the latency and re-authentication distributions are cumulative
// counters keyed by an "le" attribute. One callback reads the client on every
// collection.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider: callers supply the Meter.
//   - Mutate client state.
package otel
