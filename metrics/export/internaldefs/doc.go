// Package internaldefs holds the metric names shared by the exporters.
//
// Both the Prometheus and OpenTelemetry exporters read counter names, help
// strings and histogram bounds from here, so renaming a metric happens once.
package internaldefs
