package mailauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dvrkhlm/mailauth/users"
	"github.com/google/uuid"
)

// Rate-limit action names. Identifiers are per-IP for registration and
// login, per-user for the code flows.
const (
	rateActionLogin      = "login"
	rateActionRegister   = "register"
	rateActionCodeSend   = "2fa_send"
	rateActionCodeVerify = "2fa_verify"
)

// Register creates an account. The email is normalized to lowercase, the
// password must pass the policy check, and name is an optional display
// string. Registration is throttled per IP, falling back to the address
// being registered when no IP is attached. It does not log the caller
// in: the first login still walks the full two-step flow.
func (e *Engine) Register(ctx context.Context, email, pw, name string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rateID := rateIdentity(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err := e.checkRate(ctx, rateID, rateActionRegister, e.config.RateLimit.Register); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRegisterRateLimited)
			e.emitAudit(ctx, auditEventRegisterRateLimited, false, "", "", err, nil)
		}
		return nil, err
	}

	if err := validateEmail(email); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}
	if err := e.validatePassword(pw); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}

	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}

	now := time.Now()
	record := &users.User{
		ID:           uuid.NewString(),
		Email:        users.NormalizeEmail(email),
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}

	if err := e.users.Create(ctx, record); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrUserExists, func() map[string]string {
				return map[string]string{"email": record.Email}
			})
			return nil, ErrUserExists
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, record.ID, "", nil, func() map[string]string {
		return map[string]string{"email": record.Email}
	})

	user := publicUser(record)
	return &user, nil
}
