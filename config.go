package mailauth

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Pass it to the [Builder] via
// WithConfig; [DefaultConfig] is a working starting point for everything
// except the JWT secrets and the SMTP settings, which have no safe
// defaults.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	TwoFA     TwoFAConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the HS256 token pair. AccessSecret and
// RefreshSecret must differ; both are required.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	MinLength      int
	MaxLength      int
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFAConfig controls the emailed verification codes. MaxAttempts counts
// guesses against one issued code; the per-identifier verify rate limit is
// configured separately under RateLimit.
type TwoFAConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
	RedisPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// DriftMode selects what happens when a request's IP hash or user agent
// no longer matches the session that authenticated it.
type DriftMode int

const (
	// DriftLogOnly records the mismatch in the audit log and lets the
	// request through.
	DriftLogOnly DriftMode = iota
	// DriftReject invalidates the session and fails the request.
	DriftReject
)

type SessionConfig struct {
	RedisPrefix        string
	Lifetime           time.Duration
	IPHashSalt         string
	MaxUserAgentLength int
	IPDriftMode        DriftMode
	UserAgentDriftMode DriftMode
	// MaxSessionsPerUser is advisory: logins above it still succeed but
	// the result carries a warning. Zero disables the check.
	MaxSessionsPerUser int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateRule is one fixed-window budget.
type RateRule struct {
	MaxAttempts int
	Window      time.Duration
}

type RateLimitConfig struct {
	RedisPrefix string
	Login       RateRule
	Register    RateRule
	CodeSend    RateRule
	CodeVerify  RateRule
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig bounds outbound delivery. The Mailer implementation itself
// is injected through the Builder.
type MailConfig struct {
	SendTimeout time.Duration
	AppName     string
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 15 minute access tokens,
// 7 day refresh tokens and sessions, 5 minute codes with 3 guesses, and
// the standard per-flow rate budgets.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			Issuer:       "mailauth",
			Audience:     "mailauth-clients",
			Leeway:       30 * time.Second,
			RequireIAT:   true,
			MaxFutureIAT: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           2,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxLength:      100,
		},
		TwoFA: TwoFAConfig{
			CodeTTL:     5 * time.Minute,
			MaxAttempts: 3,
			RedisPrefix: "mu:otp",
		},
		Session: SessionConfig{
			RedisPrefix:        "mu:sess",
			Lifetime:           7 * 24 * time.Hour,
			MaxUserAgentLength: 500,
			IPDriftMode:        DriftLogOnly,
			UserAgentDriftMode: DriftLogOnly,
			MaxSessionsPerUser: 0,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "mu:rl",
			Login:       RateRule{MaxAttempts: 5, Window: 15 * time.Minute},
			Register:    RateRule{MaxAttempts: 3, Window: 60 * time.Minute},
			CodeSend:    RateRule{MaxAttempts: 3, Window: 15 * time.Minute},
			CodeVerify:  RateRule{MaxAttempts: 3, Window: 15 * time.Minute},
		},
		Mail: MailConfig{
			SendTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with. Called by
// the Builder; exported so servers can validate before constructing.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT refresh TTL must exceed access TTL")
	}
	if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT secrets must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT access and refresh secrets must differ")
	}

	if c.Password.MinLength < 8 {
		return errors.New("password MinLength must be at least 8")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("password MaxLength below MinLength")
	}

	if c.TwoFA.CodeTTL <= 0 {
		return errors.New("TwoFA CodeTTL must be positive")
	}
	if c.TwoFA.MaxAttempts < 1 {
		return errors.New("TwoFA MaxAttempts must be at least 1")
	}

	if c.Session.Lifetime <= 0 {
		return errors.New("session Lifetime must be positive")
	}
	if c.Session.Lifetime < c.JWT.RefreshTTL {
		return errors.New("session Lifetime must cover the refresh TTL")
	}
	if c.Session.MaxUserAgentLength <= 0 {
		return errors.New("session MaxUserAgentLength must be positive")
	}

	for _, rule := range []struct {
		name string
		r    RateRule
	}{
		{"Login", c.RateLimit.Login},
		{"Register", c.RateLimit.Register},
		{"CodeSend", c.RateLimit.CodeSend},
		{"CodeVerify", c.RateLimit.CodeVerify},
	} {
		if rule.r.MaxAttempts < 1 {
			return errors.New("rate limit " + rule.name + " MaxAttempts must be at least 1")
		}
		if rule.r.Window <= 0 {
			return errors.New("rate limit " + rule.name + " Window must be positive")
		}
	}

	if c.Mail.SendTimeout <= 0 {
		return errors.New("mail SendTimeout must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit BufferSize must be positive when audit is enabled")
	}

	return nil
}
