// responses.go -- HTTP response and error mapping helpers.
//
// Engine errors map onto a fixed status taxonomy; the JSON body never
// carries internal error details.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	mailauth "github.com/dvrkhlm/mailauth"
)

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	body.Success = body.Error == ""
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an engine error to its HTTP status. Rate-limit errors
// additionally carry the X-RateLimit-* and Retry-After headers.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *mailauth.RateLimitedError
	if errors.As(err, &rl) {
		now := time.Now()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		remaining := rl.Limit - rl.Attempts
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetTime.Unix(), 10))
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(now)))
		writeJSON(w, http.StatusTooManyRequests, envelope{Error: "too many requests"})
		return
	}

	switch {
	case errors.Is(err, mailauth.ErrValidation),
		errors.Is(err, mailauth.ErrPasswordPolicy):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Error: err.Error()})
	case errors.Is(err, mailauth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "invalid credentials"})
	case errors.Is(err, mailauth.ErrCodeInvalid),
		errors.Is(err, mailauth.ErrCodeExpired),
		errors.Is(err, mailauth.ErrCodeMaxAttempts):
		writeJSON(w, http.StatusUnauthorized, envelope{Error: err.Error()})
	case errors.Is(err, mailauth.ErrUnauthorized),
		errors.Is(err, mailauth.ErrTokenInvalid),
		errors.Is(err, mailauth.ErrRefreshInvalid):
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
	case errors.Is(err, mailauth.ErrUserExists),
		errors.Is(err, mailauth.ErrPasswordReuse):
		writeJSON(w, http.StatusConflict, envelope{Error: err.Error()})
	case errors.Is(err, mailauth.ErrUserNotFound),
		errors.Is(err, mailauth.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Error: err.Error()})
	default:
		logError(r, "internal server error", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "internal server error"})
	}
}
