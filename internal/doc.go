// Package internal holds cross-cutting helpers shared by the engine and its
// subsystems: one-time-code generation and privacy-preserving hashing of
// client identifiers. Nothing here is part of the public API.
package internal
