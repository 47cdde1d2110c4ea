package mailauth

import (
	"time"

	internalaudit "github.com/dvrkhlm/mailauth/internal/audit"
)

// User is the public view of an account. The password hash never leaves
// the engine.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResult is the outcome of a successful credential check. The caller
// is not authenticated yet: a verification code has been emailed and must
// be presented to [Engine.VerifyCode] to finish the login.
type LoginResult struct {
	UserID        string
	Email         string
	CodeExpiresIn time.Duration
}

// AuthResult is a fully established login: both tokens plus the session
// that anchors them. ActiveSessions counts the user's usable sessions
// including this one; SessionLimitExceeded is an advisory flag set when
// the count passed the configured ceiling.
type AuthResult struct {
	User                 User
	AccessToken          string
	RefreshToken         string
	SessionID            string
	AccessExpiresAt      time.Time
	RefreshExpiresAt     time.Time
	ActiveSessions       int
	SessionLimitExceeded bool
}

// RefreshResult carries the rotated access token plus the token's owner.
// The refresh token is unchanged; it lives until the session expires.
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	SessionID       string
	UserID          string
	User            User
}

// ValidateResult identifies the caller behind a valid access token.
type ValidateResult struct {
	User      User
	SessionID string
}

// SessionInfo is one entry of a session listing. Current marks the
// session the request itself authenticated with.
type SessionInfo struct {
	ID        string    `json:"id"`
	IPHash    string    `json:"ipHash"`
	UserAgent string    `json:"userAgent"`
	IsActive  bool      `json:"isActive"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CodeStatus reports whether a verification code is pending for a user.
type CodeStatus struct {
	Pending   bool
	ExpiresIn time.Duration
}

// MaintenanceReport summarizes one maintenance sweep.
type MaintenanceReport struct {
	SessionsRemoved int
	Took            time.Duration
}

// Audit types are aliases of the internal implementations so callers can
// supply sinks without importing internal packages.
type (
	AuditEvent     = internalaudit.Entry
	AuditSink      = internalaudit.Sink
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	RedisListSink  = internalaudit.RedisListSink
)

// NewChannelSink returns a sink that forwards events to a Go channel.
var NewChannelSink = internalaudit.NewChannelSink

// NewJSONWriterSink returns a sink that writes one JSON event per line.
var NewJSONWriterSink = internalaudit.NewJSONWriterSink

// NewRedisListSink returns a sink that keeps a capped event trail in a
// Redis list.
var NewRedisListSink = internalaudit.NewRedisListSink
