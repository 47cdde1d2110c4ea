package mailauth

import "time"

// SecurityReport summarizes the engine's effective security posture. It
// contains no secret material and is safe to log at startup.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	CodeTTL            time.Duration
	CodeMaxAttempts    int
	Argon2             PasswordConfigReport
	IPDriftMode        DriftMode
	UserAgentDriftMode DriftMode
	SessionCapsActive  bool
	AuditActive        bool
	MetricsActive      bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm: "HS256",
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		CodeTTL:          e.config.TwoFA.CodeTTL,
		CodeMaxAttempts:  e.config.TwoFA.MaxAttempts,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		IPDriftMode:        e.config.Session.IPDriftMode,
		UserAgentDriftMode: e.config.Session.UserAgentDriftMode,
		SessionCapsActive:  e.config.Session.MaxSessionsPerUser > 0,
		AuditActive:        e.config.Audit.Enabled,
		MetricsActive:      e.config.Metrics.Enabled,
	}
}
