// Package rate implements a Redis-backed fixed-window attempt counter used
// to throttle login, registration, and verification-code traffic.
package rate
