package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	otpCodeMin = 100000
	otpCodeMax = 999999

	// ipHashHexLen bounds the stored IP hash to 16 hex characters. The hash
	// exists for drift comparison, not reversal, so the truncation is fine.
	ipHashHexLen = 16
)

// NewOTPCode returns a 6-digit code drawn uniformly from [100000, 999999]
// using crypto/rand.
func NewOTPCode() (string, error) {
	span := big.NewInt(otpCodeMax - otpCodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64()+otpCodeMin)
	if len(code) != 6 {
		return "", fmt.Errorf("invalid otp code length")
	}
	return code, nil
}

// HashIP returns a salted, truncated SHA-256 of a client IP. Raw addresses
// are never persisted; sessions store and compare only this value.
func HashIP(ip, salt string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])[:ipHashHexLen]
}

// TruncateUserAgent bounds a User-Agent string for storage.
func TruncateUserAgent(ua string, max int) string {
	if max <= 0 || len(ua) <= max {
		return ua
	}
	return ua[:max]
}

// SuspiciousUserAgent reports whether a User-Agent matches common automation
// signatures. The result only feeds audit metadata; it never gates requests.
func SuspiciousUserAgent(ua string) bool {
	lowered := strings.ToLower(ua)
	for _, marker := range []string{"bot", "crawler", "spider", "scraper", "curl", "wget", "python", "requests"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
