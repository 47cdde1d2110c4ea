package mailauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dvrkhlm/mailauth/internal"
	"github.com/dvrkhlm/mailauth/users"
	"github.com/google/uuid"
)

// Login performs the first factor. On success a fresh verification code
// has been emailed and the login is pending until [Engine.VerifyCode];
// no tokens are issued here.
//
// Unknown emails and wrong passwords are indistinguishable to the caller:
// both return [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rateID := rateIdentity(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err := e.checkRate(ctx, rateID, rateActionLogin, e.config.RateLimit.Login); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, nil)
		}
		return nil, err
	}

	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := e.passwordHash.Verify(pw, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, user, pw)
	}

	// Credentials held up, so prior failed attempts in this window are
	// forgiven.
	e.resetRate(ctx, rateID, rateActionLogin)

	if _, err := e.issueCode(ctx, user); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", nil, nil)

	return &LoginResult{
		UserID:        user.ID,
		Email:         user.Email,
		CodeExpiresIn: e.config.TwoFA.CodeTTL,
	}, nil
}

// ResendCode issues a fresh verification code for a user who passed the
// first factor but lost or never received the email. The new code
// replaces the pending one. The returned ID identifies the issued code
// in the audit trail; it is never the code itself.
func (e *Engine) ResendCode(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if err := validateEmail(email); err != nil {
		return "", err
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	return e.issueCode(ctx, user)
}

// CodeStatus reports whether the user has a pending verification code and
// how long it remains valid.
func (e *Engine) CodeStatus(ctx context.Context, userID string) (*CodeStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pending, remaining, err := e.otpStore.Remaining(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CodeStatus{
		Pending:   pending,
		ExpiresIn: remaining,
	}, nil
}

// issueCode generates, stores, and emails a verification code, returning
// an opaque code ID for audit correlation. A stored code whose email
// could not be delivered is removed again, so the user is never locked
// behind a code they cannot see.
func (e *Engine) issueCode(ctx context.Context, user *users.User) (string, error) {
	if err := e.checkRate(ctx, rateIdentity(ctx, user.ID), rateActionCodeSend, e.config.RateLimit.CodeSend); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricCodeSendRateLimited)
			e.emitAudit(ctx, auditEventCodeSendRateLimited, false, user.ID, "", err, nil)
		}
		return "", err
	}

	code, err := internal.NewOTPCode()
	if err != nil {
		return "", err
	}
	codeID := uuid.NewString()

	if err := e.otpStore.Issue(ctx, user.ID, code, e.config.TwoFA.CodeTTL); err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Mail.SendTimeout)
	defer cancel()

	if err := e.mailer.SendVerificationCode(sendCtx, user.Email, code, e.config.TwoFA.CodeTTL); err != nil {
		if delErr := e.otpStore.Delete(ctx, user.ID); delErr != nil {
			log.Printf("mailauth: failed to remove undeliverable code for user %s: %v", user.ID, delErr)
		}
		e.metricInc(MetricCodeSendFailed)
		e.emitAudit(ctx, auditEventCodeSendFailed, false, user.ID, "", ErrCodeDeliveryFailed, func() map[string]string {
			return map[string]string{"code_id": codeID}
		})
		return "", fmt.Errorf("%w: %v", ErrCodeDeliveryFailed, err)
	}

	e.metricInc(MetricCodeSent)
	e.emitAudit(ctx, auditEventCodeSent, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"code_id": codeID}
	})
	return codeID, nil
}

// maybeUpgradeHash re-hashes with current parameters after a successful
// verification. Best effort: a failed upgrade never fails the login.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *users.User, pw string) {
	needs, err := e.passwordHash.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash, timeNow()); err != nil {
		log.Printf("mailauth: password hash upgrade failed for user %s: %v", user.ID, err)
	}
}
