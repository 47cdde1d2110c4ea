package mailauth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshRotatesAccessToken(t *testing.T) {
	engine, mailer, _, done := newTestEngine(t, nil)
	defer done()

	auth := registerAndVerify(t, engine, mailer, "alice@example.com", "Correct-horse1")

	ctx := context.Background()
	refreshed, err := engine.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.AccessToken == auth.AccessToken {
		t.Fatal("expected a new access token")
	}
	if refreshed.SessionID != auth.SessionID {
		t.Fatalf("expected same session, got %s", refreshed.SessionID)
	}

	// The old access token stops resolving immediately.
	if _, err := engine.Validate(ctx, auth.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for rotated-away token, got %v", err)
	}
	if _, err := engine.Validate(ctx, refreshed.AccessToken); err != nil {
		t.Fatalf("new token validate failed: %v", err)
	}

	// The refresh token stays bound to the session and keeps working.
	if _, err := engine.Refresh(ctx, auth.RefreshToken); err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
}

func TestRefreshRejectsGarbageAndAccessTokens(t *testing.T) {
	engine, mailer, _, done := newTestEngine(t, nil)
	defer done()

	auth := registerAndVerify(t, engine, mailer, "alice@example.com", "Correct-horse1")

	ctx := context.Background()
	if _, err := engine.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for garbage, got %v", err)
	}

	// An access token is signed with the wrong secret and carries the
	// wrong kind claim; it must never refresh.
	if _, err := engine.Refresh(ctx, auth.AccessToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for access token, got %v", err)
	}
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	engine, mailer, _, done := newTestEngine(t, nil)
	defer done()

	auth := registerAndVerify(t, engine, mailer, "alice@example.com", "Correct-horse1")

	ctx := context.Background()
	if err := engine.Logout(ctx, auth.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, auth.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after logout, got %v", err)
	}
}

func TestRefreshConcurrentOneSessionStaysConsistent(t *testing.T) {
	engine, mailer, _, done := newTestEngine(t, nil)
	defer done()

	auth := registerAndVerify(t, engine, mailer, "alice@example.com", "Correct-horse1")

	const workers = 8
	results := make([]*RefreshResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Refresh(context.Background(), auth.RefreshToken)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for i := 0; i < workers; i++ {
		if errs[i] == nil {
			succeeded++
		} else if !errors.Is(errs[i], ErrRefreshInvalid) {
			t.Fatalf("unexpected refresh error: %v", errs[i])
		}
	}
	if succeeded == 0 {
		t.Fatal("expected at least one refresh to succeed")
	}

	// Exactly one access token is current afterwards.
	sess, err := engine.sessionStore.GetByID(context.Background(), auth.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if _, err := engine.Validate(context.Background(), sess.Token); err != nil {
		t.Fatalf("current token validate failed: %v", err)
	}
}

func TestRefreshDriftRejectInvalidatesSession(t *testing.T) {
	engine, mailer, _, done := newTestEngine(t, func(c *Config) {
		c.Session.IPDriftMode = DriftReject
	})
	defer done()

	loginCtx := WithClientIP(context.Background(), "203.0.113.1")
	if _, err := engine.Register(loginCtx, "alice@example.com", "Correct-horse1", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := engine.Login(loginCtx, "alice@example.com", "Correct-horse1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	auth, err := engine.VerifyCode(loginCtx, "alice@example.com", mailer.lastCode("alice@example.com"))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	driftCtx := WithClientIP(context.Background(), "198.51.100.99")
	if _, err := engine.Refresh(driftCtx, auth.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on IP drift, got %v", err)
	}

	// The session was invalidated, so even the original IP is locked out.
	if _, err := engine.Refresh(loginCtx, auth.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after drift rejection, got %v", err)
	}
}

func TestRefreshDriftLogOnlyAllows(t *testing.T) {
	engine, mailer, _, done := newTestEngine(t, nil)
	defer done()

	loginCtx := WithClientIP(context.Background(), "203.0.113.1")
	if _, err := engine.Register(loginCtx, "alice@example.com", "Correct-horse1", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := engine.Login(loginCtx, "alice@example.com", "Correct-horse1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	auth, err := engine.VerifyCode(loginCtx, "alice@example.com", mailer.lastCode("alice@example.com"))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	driftCtx := WithClientIP(context.Background(), "198.51.100.99")
	if _, err := engine.Refresh(driftCtx, auth.RefreshToken); err != nil {
		t.Fatalf("expected log-only drift to allow refresh, got %v", err)
	}
}
