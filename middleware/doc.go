// Package middleware provides net/http middleware for protecting routes:
// a structural token prefilter and the authenticating guard.
package middleware
