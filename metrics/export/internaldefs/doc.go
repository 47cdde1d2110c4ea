// Package internaldefs holds the metric name and bucket definitions
// shared by the exporter implementations. Both the Prometheus and the
// OTel exporter read from here so their metric names and bucket
// boundaries never diverge.
package internaldefs
