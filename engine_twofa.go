package mailauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/dvrkhlm/mailauth/internal/stores"
	"github.com/dvrkhlm/mailauth/session"
	"github.com/dvrkhlm/mailauth/users"
	"github.com/google/uuid"
)

// VerifyCode completes the login: it consumes the emailed code and, on a
// match, establishes the session and mints both tokens. A wrong guess
// burns one of the code's attempts; once the budget is spent, the next
// attempt is refused before the code is even compared, so the correct
// code arriving late reports [ErrCodeMaxAttempts], not success.
//
// Unknown emails report [ErrCodeInvalid]; at this stage the caller
// already passed the first factor or is probing, and neither deserves a
// distinction.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			e.metricInc(MetricCodeVerifyFailure)
			return nil, ErrCodeInvalid
		}
		return nil, err
	}

	rateID := rateIdentity(ctx, user.ID)
	if err := e.checkRate(ctx, rateID, rateActionCodeVerify, e.config.RateLimit.CodeVerify); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricCodeVerifyRateLimited)
			e.emitAudit(ctx, auditEventCodeVerifyRateLimited, false, user.ID, "", err, nil)
		}
		return nil, err
	}

	attempts, err := e.otpStore.Consume(ctx, user.ID, code, e.config.TwoFA.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrCodeNotFound):
			e.metricInc(MetricCodeVerifyExpired)
			e.emitAudit(ctx, auditEventCodeVerifyExpired, false, user.ID, "", ErrCodeExpired, nil)
			return nil, ErrCodeExpired
		case errors.Is(err, stores.ErrCodeAttemptsExceeded):
			e.metricInc(MetricCodeAttemptsExceeded)
			e.emitAudit(ctx, auditEventCodeAttemptsExceeded, false, user.ID, "", ErrCodeMaxAttempts, nil)
			return nil, ErrCodeMaxAttempts
		case errors.Is(err, stores.ErrCodeMismatch):
			e.metricInc(MetricCodeVerifyFailure)
			e.emitAudit(ctx, auditEventCodeVerifyFailure, false, user.ID, "", ErrCodeInvalid, nil)
			return nil, ErrCodeInvalid
		default:
			return nil, err
		}
	}

	e.resetRate(ctx, rateID, rateActionCodeVerify)

	result, err := e.establishSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricCodeVerifySuccess)
	e.emitAudit(ctx, auditEventCodeVerifySuccess, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{"attempts": strconv.Itoa(attempts)}
	})

	return result, nil
}

// establishSession mints the token pair and registers the session.
func (e *Engine) establishSession(ctx context.Context, user *users.User) (*AuthResult, error) {
	sessionID := uuid.NewString()

	accessToken, err := e.jwtManager.CreateAccess(user.ID, user.Email, sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := e.jwtManager.CreateRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	now := timeNow()
	ipHash, userAgent := e.fingerprint(clientIPFromContext(ctx), userAgentFromContext(ctx))

	sess := &session.Session{
		ID:           sessionID,
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		IPHash:       ipHash,
		UserAgent:    userAgent,
		IsActive:     true,
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
		ExpiresAt:    now.Add(e.config.Session.Lifetime).Unix(),
	}
	if err := e.sessionStore.Create(ctx, sess); err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)

	result := &AuthResult{
		User:             publicUser(user),
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.JWT.RefreshTTL),
		ActiveSessions:   1,
	}

	// The concurrent-session ceiling is advisory. Counting failures are
	// swallowed: a login must not break because a listing did.
	if active, err := e.sessionStore.CountActive(ctx, user.ID); err == nil {
		result.ActiveSessions = active
		if limit := e.config.Session.MaxSessionsPerUser; limit > 0 && active > limit {
			result.SessionLimitExceeded = true
		}
	}

	return result, nil
}
