package mailauth

import (
	"context"
	"time"

	"github.com/dvrkhlm/mailauth/internal"
	"github.com/dvrkhlm/mailauth/internal/audit"
	"github.com/dvrkhlm/mailauth/internal/rate"
	"github.com/dvrkhlm/mailauth/internal/stores"
	"github.com/dvrkhlm/mailauth/jwt"
	"github.com/dvrkhlm/mailauth/mail"
	"github.com/dvrkhlm/mailauth/password"
	"github.com/dvrkhlm/mailauth/session"
	"github.com/dvrkhlm/mailauth/users"
)

// Engine orchestrates the authentication flows. Construct one through the
// [Builder]; the zero value is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config       Config
	users        *users.Store
	sessionStore *session.Store
	otpStore     *stores.OTPStore
	rateLimiter  *rate.Limiter
	jwtManager   *jwt.Manager
	passwordHash *password.Hasher
	mailer       mail.Mailer
	audit        *audit.Dispatcher
	metrics      *Metrics
}

// Close drains and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// Ping checks backing-store connectivity and returns the round-trip
// latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.sessionStore.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// timeNow is swapped out by tests that need a fixed clock.
var timeNow = time.Now

// fingerprint derives the stored session identity from the request
// context: salted IP hash plus the truncated user agent.
func (e *Engine) fingerprint(ip, userAgent string) (string, string) {
	return internal.HashIP(ip, e.config.Session.IPHashSalt),
		internal.TruncateUserAgent(userAgent, e.config.Session.MaxUserAgentLength)
}

func publicUser(u *users.User) User {
	return User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: time.Unix(u.CreatedAt, 0).UTC(),
	}
}
