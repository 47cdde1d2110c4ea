package mailauth

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with secrets valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "access secret too short",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "identical secrets invalid",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = append([]byte(nil), c.JWT.AccessSecret...)
			},
			wantValid: false,
		},
		{
			name: "refresh ttl below access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = time.Hour
				c.JWT.RefreshTTL = time.Minute
			},
			wantValid: false,
		},
		{
			name: "session lifetime shorter than refresh ttl",
			mutate: func(c *Config) {
				c.Session.Lifetime = c.JWT.RefreshTTL - time.Hour
			},
			wantValid: false,
		},
		{
			name: "password min length too low",
			mutate: func(c *Config) {
				c.Password.MinLength = 4
			},
			wantValid: false,
		},
		{
			name: "password max below min",
			mutate: func(c *Config) {
				c.Password.MaxLength = c.Password.MinLength - 1
			},
			wantValid: false,
		},
		{
			name: "code ttl zero",
			mutate: func(c *Config) {
				c.TwoFA.CodeTTL = 0
			},
			wantValid: false,
		},
		{
			name: "code attempts zero",
			mutate: func(c *Config) {
				c.TwoFA.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "rate rule without window",
			mutate: func(c *Config) {
				c.RateLimit.CodeVerify.Window = 0
			},
			wantValid: false,
		},
		{
			name: "rate rule without attempts",
			mutate: func(c *Config) {
				c.RateLimit.Login.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "mail send timeout zero",
			mutate: func(c *Config) {
				c.Mail.SendTimeout = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "user agent cap zero",
			mutate: func(c *Config) {
				c.Session.MaxUserAgentLength = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	clone.JWT.AccessSecret[0] ^= 0xFF
	if cfg.JWT.AccessSecret[0] == clone.JWT.AccessSecret[0] {
		t.Fatal("expected clone to hold an independent secret copy")
	}
}
