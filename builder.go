package mailauth

import (
	"errors"

	"github.com/dvrkhlm/mailauth/internal/audit"
	"github.com/dvrkhlm/mailauth/internal/rate"
	"github.com/dvrkhlm/mailauth/internal/stores"
	"github.com/dvrkhlm/mailauth/jwt"
	"github.com/dvrkhlm/mailauth/mail"
	"github.com/dvrkhlm/mailauth/password"
	"github.com/dvrkhlm/mailauth/session"
	"github.com/dvrkhlm/mailauth/users"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Redis and a mailer are required; every
// other dependency is constructed from the config.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	mailer    mail.Mailer
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the verification-code delivery channel. Use
// [mail.NopMailer] only in tests; production flows require real delivery.
func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the config and wires the engine. A Builder is single
// use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    cfg.JWT.RequireIAT,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		users:        users.NewStore(b.redis, "mu:user"),
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		otpStore:     stores.NewOTPStore(b.redis, cfg.TwoFA.RedisPrefix),
		rateLimiter:  rate.New(b.redis, cfg.RateLimit.RedisPrefix),
		jwtManager:   jwtManager,
		passwordHash: hasher,
		mailer:       b.mailer,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
