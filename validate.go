package mailauth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// emailPattern is deliberately loose: it enforces shape, not RFC 5322.
// Deliverability is proven by the verification code, not the regex.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const maxEmailLength = 254

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("%w: email too long", ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

// validateName accepts an empty name; a provided one must be a short
// display string.
func validateName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) < 2 || len(name) > 50 {
		return fmt.Errorf("%w: name must be between 2 and 50 characters", ErrValidation)
	}
	return nil
}

// validatePassword enforces the registration policy: length bounds plus at
// least one lowercase letter, one uppercase letter, and one digit.
func (e *Engine) validatePassword(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if len(pw) > e.config.Password.MaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrPasswordPolicy, e.config.Password.MaxLength)
	}

	var hasLower, hasUpper, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit {
		return fmt.Errorf("%w: password needs a lowercase letter, an uppercase letter, and a digit", ErrPasswordPolicy)
	}
	return nil
}

// rateIdentity picks the bucket for a rate window: the caller's IP when
// the context carries one, otherwise the given fallback. Library callers
// that never attach an IP still get per-identity windows instead of one
// shared global bucket.
func rateIdentity(ctx context.Context, fallback string) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return fallback
}

// checkRate records one attempt against the action's fixed window and
// converts an exceeded budget into a [RateLimitedError]. Rate backend
// failures fail closed: an attacker should not gain unlimited attempts by
// degrading Redis.
func (e *Engine) checkRate(ctx context.Context, identifier, action string, rule RateRule) error {
	result, err := e.rateLimiter.Check(ctx, identifier, action, rule.MaxAttempts, rule.Window)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &RateLimitedError{
			Action:    action,
			Limit:     result.Limit,
			Attempts:  result.Attempts,
			ResetTime: result.ResetTime,
		}
	}
	return nil
}

// resetRate forgives the window after a successful operation; failures
// are harmless (the counter just expires on its own) so they are dropped.
func (e *Engine) resetRate(ctx context.Context, identifier, action string) {
	_ = e.rateLimiter.Reset(ctx, identifier, action)
}
