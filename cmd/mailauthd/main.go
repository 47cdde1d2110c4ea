// mailauthd runs the authentication engine behind an HTTP server.
// Configuration comes from the environment; see loadConfig for the
// variable names.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mailauth "github.com/dvrkhlm/mailauth"
	"github.com/dvrkhlm/mailauth/httpapi"
	"github.com/dvrkhlm/mailauth/mail"
	"github.com/dvrkhlm/mailauth/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.redisAddr},
		Password: cfg.redisPassword,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.redisAddr, err)
	}

	var mailer mail.Mailer
	if cfg.smtp.Host != "" {
		mailer = mail.NewSMTPMailer(cfg.smtp)
	} else {
		logger.Warn("SMTP_HOST not set, verification codes are logged instead of sent")
		mailer = mail.NopMailer{}
	}

	engine, err := mailauth.New().
		WithConfig(cfg.engine).
		WithRedis(client).
		WithMailer(mailer).
		WithAuditSink(mailauth.NewRedisListSink(client, "mu:audit", 10000)).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.NewHandler(engine, cfg.secureCookies)

	mux := http.NewServeMux()
	mux.Handle("/", api.Routes())
	mux.Handle("GET /metrics", prometheus.NewExporter(engine).Handler())

	server := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go maintenanceLoop(ctx, engine, cfg.maintenanceEvery, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.listenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	return nil
}

// maintenanceLoop sweeps expired and invalidated sessions until the
// context ends.
func maintenanceLoop(ctx context.Context, engine *mailauth.Engine, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := engine.PerformMaintenance(ctx)
			if err != nil {
				logger.Warn("maintenance sweep failed", "error", err)
				continue
			}
			logger.Info("maintenance sweep",
				"sessions_removed", report.SessionsRemoved,
				"took", report.Took.String(),
			)
		}
	}
}

type serverConfig struct {
	listenAddr       string
	redisAddr        string
	redisPassword    string
	secureCookies    bool
	maintenanceEvery time.Duration
	smtp             mail.SMTPConfig
	engine           mailauth.Config
}

func loadConfig() (serverConfig, error) {
	cfg := serverConfig{
		listenAddr:       envOr("LISTEN_ADDR", ":8080"),
		redisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		redisPassword:    os.Getenv("REDIS_PASSWORD"),
		secureCookies:    envBool("SECURE_COOKIES", true),
		maintenanceEvery: envDuration("MAINTENANCE_INTERVAL", 10*time.Minute),
		smtp: mail.SMTPConfig{
			Host:        os.Getenv("SMTP_HOST"),
			Port:        envOr("SMTP_PORT", "587"),
			Username:    os.Getenv("SMTP_USERNAME"),
			Password:    os.Getenv("SMTP_PASSWORD"),
			FromAddress: os.Getenv("SMTP_FROM"),
			AppName:     envOr("APP_NAME", "mailauth"),
		},
	}

	engine := mailauth.DefaultConfig()
	engine.JWT.AccessSecret = []byte(os.Getenv("JWT_ACCESS_SECRET"))
	engine.JWT.RefreshSecret = []byte(os.Getenv("JWT_REFRESH_SECRET"))
	engine.Session.IPHashSalt = os.Getenv("IP_HASH_SALT")
	engine.Mail.AppName = cfg.smtp.AppName
	engine.Audit.Enabled = true

	if len(engine.JWT.AccessSecret) == 0 || len(engine.JWT.RefreshSecret) == 0 {
		return serverConfig{}, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}

	cfg.engine = engine
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
