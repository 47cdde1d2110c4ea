package mailauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dvrkhlm/mailauth/mail"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	return mr, rdb
}

// captureMailer records the last code sent per recipient instead of
// delivering mail.
type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{codes: make(map[string]string)}
}

func (m *captureMailer) SendVerificationCode(_ context.Context, toEmail, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errTestDelivery
	}
	m.codes[toEmail] = code
	return nil
}

func (m *captureMailer) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func (m *captureMailer) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

var errTestDelivery = &testDeliveryError{}

type testDeliveryError struct{}

func (*testDeliveryError) Error() string { return "smtp connection refused" }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
	cfg.Session.IPHashSalt = "test-salt"
	// Cheap hashing keeps the suite fast; production parameters are
	// covered in the password package tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *captureMailer, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mailer := newCaptureMailer()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(mailer).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mailer, mr, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func newAuditTestEngine(t *testing.T, cfg Config, sink AuditSink) (*Engine, *captureMailer, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	mailer := newCaptureMailer()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mailer, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

var _ mail.Mailer = (*captureMailer)(nil)

// registerAndVerify drives the full two-step flow and returns the
// established session's tokens.
func registerAndVerify(t *testing.T, engine *Engine, mailer *captureMailer, email, pw string) *AuthResult {
	t.Helper()

	ctx := context.Background()
	if _, err := engine.Register(ctx, email, pw, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return loginAndVerify(t, engine, mailer, email, pw)
}

func loginAndVerify(t *testing.T, engine *Engine, mailer *captureMailer, email, pw string) *AuthResult {
	t.Helper()

	ctx := context.Background()
	if _, err := engine.Login(ctx, email, pw); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	code := mailer.lastCode(email)
	if code == "" {
		t.Fatal("expected a verification code to be captured")
	}
	result, err := engine.VerifyCode(ctx, email, code)
	if err != nil {
		t.Fatalf("verify code failed: %v", err)
	}
	return result
}
