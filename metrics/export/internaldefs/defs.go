package internaldefs

import (
	mailauth "github.com/dvrkhlm/mailauth"
)

// CounterDef maps one engine counter to its exported name and help text.
type CounterDef struct {
	ID   mailauth.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine latency histogram to its exported name
// and help text.
type HistogramDef struct {
	ID   mailauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: mailauth.MetricRegisterSuccess, Name: "mailauth_register_success_total", Help: "Successful registrations."},
	{ID: mailauth.MetricRegisterDuplicate, Name: "mailauth_register_duplicate_total", Help: "Registration attempts rejected as duplicate."},
	{ID: mailauth.MetricRegisterRateLimited, Name: "mailauth_register_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: mailauth.MetricLoginSuccess, Name: "mailauth_login_success_total", Help: "Credential checks that passed and triggered a code."},
	{ID: mailauth.MetricLoginFailure, Name: "mailauth_login_failure_total", Help: "Failed credential checks."},
	{ID: mailauth.MetricLoginRateLimited, Name: "mailauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: mailauth.MetricCodeSent, Name: "mailauth_code_sent_total", Help: "Verification codes delivered."},
	{ID: mailauth.MetricCodeSendFailed, Name: "mailauth_code_send_failed_total", Help: "Verification code delivery failures."},
	{ID: mailauth.MetricCodeSendRateLimited, Name: "mailauth_code_send_rate_limited_total", Help: "Rate-limited code send requests."},
	{ID: mailauth.MetricCodeVerifySuccess, Name: "mailauth_code_verify_success_total", Help: "Successful code verifications."},
	{ID: mailauth.MetricCodeVerifyFailure, Name: "mailauth_code_verify_failure_total", Help: "Failed code verifications."},
	{ID: mailauth.MetricCodeVerifyExpired, Name: "mailauth_code_verify_expired_total", Help: "Verification attempts against expired or absent codes."},
	{ID: mailauth.MetricCodeAttemptsExceeded, Name: "mailauth_code_attempts_exceeded_total", Help: "Codes invalidated after the attempt cap."},
	{ID: mailauth.MetricCodeVerifyRateLimited, Name: "mailauth_code_verify_rate_limited_total", Help: "Rate-limited code verification attempts."},
	{ID: mailauth.MetricRefreshSuccess, Name: "mailauth_refresh_success_total", Help: "Successful token refreshes."},
	{ID: mailauth.MetricRefreshFailure, Name: "mailauth_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: mailauth.MetricSessionCreated, Name: "mailauth_session_created_total", Help: "Created sessions."},
	{ID: mailauth.MetricSessionInvalidated, Name: "mailauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: mailauth.MetricSessionDriftIP, Name: "mailauth_session_drift_ip_total", Help: "Sessions observed from a different IP."},
	{ID: mailauth.MetricSessionDriftUA, Name: "mailauth_session_drift_ua_total", Help: "Sessions observed with a different user agent."},
	{ID: mailauth.MetricSessionDriftRejected, Name: "mailauth_session_drift_rejected_total", Help: "Requests rejected by drift enforcement."},
	{ID: mailauth.MetricLogout, Name: "mailauth_logout_total", Help: "Single-session logout operations."},
	{ID: mailauth.MetricLogoutAll, Name: "mailauth_logout_all_total", Help: "Logout-all operations."},
	{ID: mailauth.MetricPasswordChangeSuccess, Name: "mailauth_password_change_success_total", Help: "Successful password changes."},
	{ID: mailauth.MetricPasswordChangeInvalidOld, Name: "mailauth_password_change_invalid_old_total", Help: "Password change attempts with an invalid current password."},
	{ID: mailauth.MetricPasswordChangeReuseRejected, Name: "mailauth_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: mailauth.MetricMaintenanceRun, Name: "mailauth_maintenance_run_total", Help: "Maintenance sweeps executed."},
}

var HistogramDefs = []HistogramDef{
	{ID: mailauth.MetricValidateLatency, Name: "mailauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds holds the upper bounds of the engine's fixed latency
// buckets, rendered the way Prometheus expects.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds in a form safe for
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// both exporters emit.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
