// Package session implements the Redis-backed session registry: one
// record per device login, token-to-session lookup indexes, in-place
// access-token rotation, soft invalidation, and the expired-session sweep.
//
// # Architecture boundaries
//
// This package owns session persistence only. Token minting and claim
// validation live in the jwt package; drift policy (hashed IP and
// user-agent comparison) is decided by the engine.
package session
