// Package audit implements the append-only security event log: the entry
// model, the async dispatcher, and the bundled sinks (no-op, channel, JSON
// writer, Redis list). Audit writes are best-effort and must never abort or
// slow the operation being recorded.
package audit
