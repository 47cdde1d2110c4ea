package rate

import "errors"

// ErrBackendUnavailable wraps Redis failures so callers can decide whether
// to fail open or closed without matching on driver error strings.
var ErrBackendUnavailable = errors.New("rate: backend unavailable")
