package mailauth

import (
	"context"
	"errors"

	"github.com/dvrkhlm/mailauth/session"
	"github.com/dvrkhlm/mailauth/users"
)

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated; it stays bound to the session until the
// session's absolute lifetime ends. The session record is updated so the
// previous access token stops resolving immediately.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	sess, err := e.sessionStore.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, claims.SID, ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	// The signed claims and the stored record must agree; a mismatch
	// means the index resolved a token the session no longer owns.
	if sess.ID != claims.SID || sess.UserID != claims.UID || !sess.Usable(timeNow()) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, claims.SID, ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	if err := e.checkDrift(ctx, sess); err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	newAccess, err := e.jwtManager.CreateAccess(user.ID, user.Email, sess.ID)
	if err != nil {
		return nil, err
	}

	now := timeNow()
	if _, err := e.sessionStore.RotateAccessToken(ctx, sess.ID, newAccess, now); err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInactive) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, sess.ID, nil, nil)

	return &RefreshResult{
		AccessToken:     newAccess,
		AccessExpiresAt: now.Add(e.config.JWT.AccessTTL),
		SessionID:       sess.ID,
		UserID:          user.ID,
		User:            publicUser(user),
	}, nil
}

// checkDrift compares the request's fingerprint against the session's.
// In DriftLogOnly mode mismatches are recorded and the request proceeds;
// in DriftReject mode the session is invalidated and the request fails.
func (e *Engine) checkDrift(ctx context.Context, sess *session.Session) error {
	ipHash, userAgent := e.fingerprint(clientIPFromContext(ctx), userAgentFromContext(ctx))

	var reject bool

	if sess.IPHash != "" && ipHash != "" && sess.IPHash != ipHash {
		e.metricInc(MetricSessionDriftIP)
		e.emitAudit(ctx, auditEventSessionDriftIP, false, sess.UserID, sess.ID, nil, nil)
		if e.config.Session.IPDriftMode == DriftReject {
			reject = true
		}
	}

	if sess.UserAgent != "" && userAgent != "" && sess.UserAgent != userAgent {
		e.metricInc(MetricSessionDriftUA)
		e.emitAudit(ctx, auditEventSessionDriftUA, false, sess.UserID, sess.ID, nil, nil)
		if e.config.Session.UserAgentDriftMode == DriftReject {
			reject = true
		}
	}

	if !reject {
		return nil
	}

	e.metricInc(MetricSessionDriftRejected)
	e.emitAudit(ctx, auditEventSessionDriftRejected, false, sess.UserID, sess.ID, ErrUnauthorized, nil)
	if err := e.sessionStore.Invalidate(ctx, sess.ID, timeNow()); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	e.metricInc(MetricSessionInvalidated)
	return ErrUnauthorized
}
