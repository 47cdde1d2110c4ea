package mailauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is returned when a token or session fails validation
	// for any reason that must not be distinguished to the caller.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for unknown email or wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a user lookup by id or email fails.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by Register when the email is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrValidation is returned for malformed registration or login input.
	ErrValidation = errors.New("invalid input")

	// ErrCodeInvalid is returned when the submitted 2FA code does not match.
	// The attempt has already been counted by the time this is returned.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeExpired is returned when no live code exists for the user.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMaxAttempts is returned once a code has burned its attempt
	// budget. The code is deleted; a fresh SendCode is required.
	ErrCodeMaxAttempts = errors.New("verification code attempts exceeded")
	// ErrCodeDeliveryFailed is returned when the mail transport rejects or
	// times out. The stored code has already been deleted (compensation).
	ErrCodeDeliveryFailed = errors.New("verification code delivery failed")

	// ErrTokenInvalid is returned for structurally or cryptographically
	// invalid access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid is returned for any refresh failure: bad signature,
	// unknown token, inactive session, or user mismatch.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrSessionNotFound is returned when a session lookup fails.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRateLimited is the sentinel matched by errors.Is for every
	// rate-limit rejection. The concrete value is a [RateLimitedError].
	ErrRateLimited = errors.New("rate limited")

	// ErrPasswordPolicy is returned when a new password fails policy checks.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the old one.
	ErrPasswordReuse = errors.New("new password must be different from current password")

	// ErrEngineNotReady is returned when an Engine method is called on a
	// value that was not produced by [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitedError carries the window state of a rejected attempt so callers
// can surface Retry-After and X-RateLimit headers. It matches
// [ErrRateLimited] under errors.Is.
type RateLimitedError struct {
	Action    string
	Limit     int
	Attempts  int
	ResetTime time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: action=%s attempts=%d/%d", e.Action, e.Attempts, e.Limit)
}

// Is reports sentinel identity so errors.Is(err, ErrRateLimited) holds.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter returns the whole seconds until the window resets, minimum 1.
func (e *RateLimitedError) RetryAfter(now time.Time) int {
	secs := int(e.ResetTime.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
