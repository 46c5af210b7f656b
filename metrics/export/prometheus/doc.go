// Package prometheus exposes authflow metrics in the Prometheus text format.
//
// [Exporter.Handler] renders every counter as authflow_*_total and the
// delivery latency histogram as authflow_delivery_latency_seconds. Nothing is
// registered globally; callers mount the handler themselves.
package prometheus
