package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// expiryGrace keeps the prefilter from rejecting a token the verifier's
// clock leeway would still accept. The Guard enforces the real expiry.
const expiryGrace = time.Minute

// Prefilter rejects requests that cannot possibly carry a valid access
// token: no token at all, a token not shaped like a JWT, or one whose
// payload is already visibly dead (expired, or missing the claims every
// token this module mints carries). It performs no signature check and
// no store lookup, so it is cheap enough to sit in front of everything.
//
// Prefilter is NOT a trust boundary. Every request it passes still goes
// through [Guard] (or [mailauth.Engine.Validate]) before any identity is
// believed. Its only job is to keep obvious garbage away from the
// validation path.
func Prefilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := RequestToken(r)
		if !ok || !structurallyJWT(token) || !plausiblePayload(token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// structurallyJWT checks the three-segment compact form without decoding
// anything.
func structurallyJWT(token string) bool {
	if len(token) < 16 || len(token) > 8192 {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			c := part[i]
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '-' || c == '_':
			default:
				return false
			}
		}
	}
	return true
}

// plausiblePayload decodes the payload segment, signature-blind, and
// rejects tokens whose claims already rule them out: no exp, no issuer,
// no audience, no subject user, or an exp in the past.
func plausiblePayload(token string) bool {
	seg := strings.Split(token, ".")[1]
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return false
	}

	var claims struct {
		Exp float64         `json:"exp"`
		Iss string          `json:"iss"`
		Aud json.RawMessage `json:"aud"`
		UID string          `json:"uid"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return false
	}
	if claims.Exp == 0 || claims.Iss == "" || len(claims.Aud) == 0 || claims.UID == "" {
		return false
	}
	return time.Unix(int64(claims.Exp), 0).Add(expiryGrace).After(time.Now())
}
