// Package stores contains the Redis record stores that back short-lived
// authentication state, currently the pending email verification codes.
package stores
