// Package prometheus exposes engine metrics in the Prometheus text
// exposition format.
//
// [NewExporter] takes an engine and returns an exporter whose Handler
// serves all counters and the validate latency histogram. Counter names
// carry the mailauth_ prefix; nothing is registered in a global
// registry, callers mount the handler themselves.
package prometheus
