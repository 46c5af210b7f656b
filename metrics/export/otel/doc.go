// Package otel publishes authflow metrics through OpenTelemetry.
//
// [NewExporter] creates one observable counter per authflow counter and a
// pair of observable gauges for the delivery latency histogram. The caller
// owns the MeterProvider.
package otel
