//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dvrkhlm/mailauth/session"
	"github.com/redis/go-redis/v9"
)

func newIntegrationStore(t *testing.T) (*session.Store, redis.UniversalClient, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	store := session.NewStore(rdb, "mu:sess")

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(userID, sessionID string) *session.Session {
	now := time.Now()
	return &session.Session{
		ID:           sessionID,
		UserID:       userID,
		Token:        "access-" + sessionID,
		RefreshToken: "refresh-" + sessionID,
		IPHash:       "iphash",
		UserAgent:    "integration-agent",
		IsActive:     true,
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
}
