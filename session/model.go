package session

import "time"

// Session is one device login. Timestamps are unix seconds so the rotation
// script can touch them without a Go round-trip.
//
// IsActive distinguishes "logged out" from "gone": invalidation flips the
// flag but keeps the record until cleanup, so audit trails and session
// listings can still see recently ended logins.
type Session struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	IPHash       string `json:"ipHash"`
	UserAgent    string `json:"userAgent"`
	IsActive     bool   `json:"isActive"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Expired reports whether the session's absolute lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// Usable reports whether the session can authenticate requests at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}
