package mailauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventRegisterRateLimited   = "register_rate_limited"
	auditEventRegisterFailure       = "register_failure"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventCodeSent              = "code_sent"
	auditEventCodeSendFailed        = "code_send_failed"
	auditEventCodeSendRateLimited   = "code_send_rate_limited"
	auditEventCodeVerifySuccess     = "code_verify_success"
	auditEventCodeVerifyFailure     = "code_verify_failure"
	auditEventCodeVerifyExpired     = "code_verify_expired"
	auditEventCodeAttemptsExceeded  = "code_verify_attempts_exceeded"
	auditEventCodeVerifyRateLimited = "code_verify_rate_limited"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventSessionDriftIP        = "session_drift_ip"
	auditEventSessionDriftUA        = "session_drift_ua"
	auditEventSessionDriftRejected  = "session_drift_rejected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventSessionInvalidated    = "session_invalidated"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeInvalid = "password_change_invalid_old"
	auditEventPasswordChangeReuse   = "password_change_reuse_attempt"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventMaintenanceRun        = "maintenance_run"
)

// AuditErrorCode is the stable error vocabulary used in audit entries.
// Codes never carry user input; they are safe to ship to external log
// pipelines.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCodeMaxAttempts):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrCodeDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}

// emitAudit never blocks the calling flow: the dispatcher either buffers
// the entry or drops it.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	detailsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var details map[string]string
	if detailsBuilder != nil {
		details = detailsBuilder()
	}
	if sessionID != "" {
		if details == nil {
			details = make(map[string]string, 1)
		}
		details["session_id"] = sessionID
	}

	event := AuditEvent{
		Timestamp:     time.Now().UTC(),
		Action:        eventType,
		UserID:        userID,
		IP:            clientIPFromContext(ctx),
		UserAgent:     userAgentFromContext(ctx),
		Success:       success,
		CorrelationID: correlationIDFromContext(ctx),
		Details:       details,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
