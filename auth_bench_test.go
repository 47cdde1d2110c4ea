package mailauth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkValidate(b *testing.B) {
	engine, mailer, cleanup := newBenchEngine(b)
	defer cleanup()

	auth := benchLogin(b, engine, mailer)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Validate(context.Background(), auth.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, mailer, cleanup := newBenchEngine(b)
	defer cleanup()

	auth := benchLogin(b, engine, mailer)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Refresh(context.Background(), auth.RefreshToken); err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkLoginVerify(b *testing.B) {
	engine, mailer, cleanup := newBenchEngine(b)
	defer cleanup()

	ctx := context.Background()
	if _, err := engine.Register(ctx, "alice@example.com", "Correct-horse1", ""); err != nil {
		b.Fatalf("register failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "Correct-horse1"); err != nil {
			b.Fatalf("login failed: %v", err)
		}
		auth, err := engine.VerifyCode(ctx, "alice@example.com", mailer.lastCode("alice@example.com"))
		if err != nil {
			b.Fatalf("verify failed: %v", err)
		}
		_ = engine.Logout(ctx, auth.AccessToken)
	}
}

func newBenchEngine(b *testing.B) (*Engine, *captureMailer, func()) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false
	cfg.RateLimit.Login.MaxAttempts = 1 << 30
	cfg.RateLimit.CodeSend.MaxAttempts = 1 << 30
	cfg.RateLimit.CodeVerify.MaxAttempts = 1 << 30

	mailer := newCaptureMailer()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(mailer).
		Build()
	if err != nil {
		mr.Close()
		b.Fatalf("Build failed: %v", err)
	}

	return engine, mailer, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func benchLogin(b *testing.B, engine *Engine, mailer *captureMailer) *AuthResult {
	b.Helper()

	ctx := context.Background()
	if _, err := engine.Register(ctx, "alice@example.com", "Correct-horse1", ""); err != nil {
		b.Fatalf("register failed: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "Correct-horse1"); err != nil {
		b.Fatalf("login failed: %v", err)
	}
	auth, err := engine.VerifyCode(ctx, "alice@example.com", mailer.lastCode("alice@example.com"))
	if err != nil {
		b.Fatalf("verify failed: %v", err)
	}
	return auth
}
