package mailauth

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/dvrkhlm/mailauth/session"
	"github.com/dvrkhlm/mailauth/users"
)

// Validate authenticates a request by access token. The token must parse
// AND still be the session's current token: a rotated-away or logged-out
// token fails here even though its signature and expiry are fine.
//
// A successful validation heartbeats the session (bumps updatedAt) and
// runs the drift checks.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*ValidateResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := timeNow()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessionStore.GetByToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if sess.ID != claims.SID || sess.UserID != claims.UID || !sess.Usable(timeNow()) {
		return nil, ErrUnauthorized
	}

	if err := e.checkDrift(ctx, sess); err != nil {
		return nil, err
	}

	// Heartbeat failures must not fail an otherwise valid request.
	if err := e.sessionStore.Heartbeat(ctx, sess.ID, timeNow()); err != nil &&
		!errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrInactive) {
		log.Printf("mailauth: session heartbeat failed for %s: %v", sess.ID, err)
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	return &ValidateResult{
		User:      publicUser(user),
		SessionID: sess.ID,
	}, nil
}

// Logout ends the session behind the access token. The record survives
// as inactive until maintenance sweeps it. Logout is idempotent: a token
// whose session is already gone, including one logged out a moment ago,
// reports success.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessionStore.GetByToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := e.sessionStore.Invalidate(ctx, sess.ID, timeNow()); err != nil &&
		!errors.Is(err, session.ErrNotFound) {
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.UserID, sess.ID, nil, nil)
	return nil
}

// LogoutAll ends every session the user has and reports how many were
// still live.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	ended, err := e.sessionStore.InvalidateAllForUser(ctx, userID, timeNow())
	if err != nil {
		return ended, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions_ended": strconv.Itoa(ended)}
	})
	return ended, nil
}

// ListSessions returns the user's surviving sessions, newest first.
// currentSessionID marks which entry the caller is using right now; pass
// "" when unknown.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sessions, err := e.sessionStore.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			ID:        sess.ID,
			IPHash:    sess.IPHash,
			UserAgent: sess.UserAgent,
			IsActive:  sess.IsActive,
			Current:   sess.ID == currentSessionID,
			CreatedAt: time.Unix(sess.CreatedAt, 0).UTC(),
			UpdatedAt: time.Unix(sess.UpdatedAt, 0).UTC(),
			ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// InvalidateSession ends one specific session owned by userID. A session
// that exists but belongs to someone else reads as not found.
func (e *Engine) InvalidateSession(ctx context.Context, userID, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessionStore.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}

	if err := e.sessionStore.Invalidate(ctx, sessionID, timeNow()); err != nil &&
		!errors.Is(err, session.ErrNotFound) {
		return err
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, userID, sessionID, nil, nil)
	return nil
}

// ChangePassword verifies the old password, applies the policy to the new
// one, rejects reuse of the old password, and then ends every session the
// user has. The caller must log in again with the new password.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	ok, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.validatePassword(newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return err
	}

	same, err := e.passwordHash.Verify(newPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, userID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, newHash, timeNow()); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return err
	}

	// Every outstanding token is now suspect; end all sessions.
	if _, err := e.sessionStore.InvalidateAllForUser(ctx, userID, timeNow()); err != nil {
		log.Printf("mailauth: session invalidation after password change failed for user %s: %v", userID, err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, "", nil, nil)
	return nil
}

// PerformMaintenance sweeps expired and invalidated sessions. Run it
// periodically; it is O(n) over session records and safe to run
// concurrently with live traffic.
func (e *Engine) PerformMaintenance(ctx context.Context) (*MaintenanceReport, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := timeNow()
	removed, err := e.sessionStore.CleanupExpired(ctx, start)
	if err != nil {
		return nil, err
	}

	report := &MaintenanceReport{
		SessionsRemoved: removed,
		Took:            time.Since(start),
	}

	e.metricInc(MetricMaintenanceRun)
	e.emitAudit(ctx, auditEventMaintenanceRun, true, "", "", nil, func() map[string]string {
		return map[string]string{"sessions_removed": strconv.Itoa(removed)}
	})
	return report, nil
}
