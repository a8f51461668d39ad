package merco

import (
	"context"
	"errors"

	"github.com/SametHaymana/merco-api/credential"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/password"
)

// ChangePassword verifies oldPassword, stores newPassword and revokes every
// session of the user, including the caller's.
func (e *Engine) ChangePassword(ctx context.Context, tenantID, userID, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := password.ValidatePassword(newPassword); err != nil {
		return invalidInput(err)
	}
	if oldPassword == newPassword {
		return invalidInput(errors.New("new password must differ from the current one"))
	}

	u, err := e.loadUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if u.Banned {
		return ErrForbidden
	}
	if err := e.verifier.CheckPassword(u, oldPassword); err != nil {
		if errors.Is(err, credential.ErrInvalidCredentials) {
			e.emitAudit(ctx, audit.TypePasswordChanged, tenantID, userID, "", ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}
		return e.internal(ctx, "password.check", err)
	}
	if err := e.setPassword(ctx, u, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, audit.TypePasswordChanged, tenantID, userID, "", nil, nil)
	return nil
}

// SetBanned bans or unbans a user. Banning revokes every session; refresh and
// sign-in then fail with ErrForbidden.
func (e *Engine) SetBanned(ctx context.Context, tenantID, userID string, banned bool) error {
	if e == nil {
		return ErrEngineNotReady
	}
	u, err := e.loadUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if u.Banned != banned {
		u.Banned = banned
		u.UpdatedAt = e.now()
		if err := e.users.UpdateUser(ctx, u); err != nil {
			return e.internal(ctx, "user.ban", err)
		}
	}

	typ := audit.TypeUnbanned
	if banned {
		typ = audit.TypeBanned
		if _, err := e.sessions.RevokeAllForUser(ctx, tenantID, userID); err != nil {
			return e.internal(ctx, "user.ban.revoke_sessions", err)
		}
	}
	e.emitAudit(ctx, typ, tenantID, userID, "", nil, nil)
	return nil
}
