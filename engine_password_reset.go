package merco

import (
	"context"
	"errors"
	"strings"

	"github.com/SametHaymana/merco-api/credential"
	"github.com/SametHaymana/merco-api/internal"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/storage"
)

// RequestPasswordReset mails a reset link when email belongs to a user of the
// tenant. Unknown emails succeed silently so the call cannot enumerate accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, tenantID, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email, err := normalizeIdentifier(ChannelEmail, email)
	if err != nil {
		return err
	}
	if err := e.allowSend(ctx, "password_reset", "reset:"+tenantID+":"+email); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	u, err := e.users.UserByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return e.internal(ctx, "reset.lookup", err)
	}
	if u.Banned {
		return nil
	}

	raw, err := internal.NewResetToken()
	if err != nil {
		return e.internal(ctx, "reset.generate", err)
	}
	if err := e.putToken(ctx, tenantID, storage.TokenPasswordReset, email, raw, e.config.PasswordReset.TTL); err != nil {
		return err
	}

	link, err := buildLink(e.config.PasswordReset.BaseURL, tenantID, raw)
	if err != nil {
		return e.internal(ctx, "reset.url", err)
	}
	err = e.deliver(ctx, notify.Message{
		Channel:  ChannelEmail,
		To:       email,
		Subject:  "Reset your password",
		Body:     "Use the link below to choose a new password:\n\n" + link + "\n\nIf you did not request this, ignore this email.",
		Purpose:  notify.PurposePasswordReset,
		TenantID: tenantID,
	})
	e.emitAudit(ctx, audit.TypePasswordResetRequest, tenantID, u.ID, "", err, nil)
	return err
}

// ConfirmPasswordReset consumes a reset_ token, sets newPassword and revokes
// every session of the user.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, tenantID, raw, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	raw = strings.TrimSpace(raw)
	if !internal.HasPrefixedShape(raw, internal.ResetTokenPrefix, internal.ResetTokenBodyLen) {
		return ErrInvalidToken
	}
	if err := password.ValidatePassword(newPassword); err != nil {
		return invalidInput(err)
	}

	tok, err := e.verifier.VerifySingleUseToken(ctx, tenantID, storage.TokenPasswordReset, "", raw)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidToken) {
			e.emitAudit(ctx, audit.TypePasswordReset, tenantID, "", "", ErrInvalidToken, nil)
			return ErrInvalidToken
		}
		return e.internal(ctx, "reset.consume", err)
	}

	u, err := e.users.UserByEmail(ctx, tenantID, tok.Identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return e.internal(ctx, "reset.lookup", err)
	}
	if u.Banned {
		e.emitAudit(ctx, audit.TypePasswordReset, tenantID, u.ID, "", ErrForbidden, nil)
		return ErrForbidden
	}
	if err := e.setPassword(ctx, u, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirm)
	e.emitAudit(ctx, audit.TypePasswordReset, tenantID, u.ID, "", nil, nil)
	return nil
}

// setPassword re-hashes, persists and revokes every session of u.
func (e *Engine) setPassword(ctx context.Context, u *storage.User, newPassword string) error {
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internal(ctx, "password.hash", err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = e.now()
	if err := e.users.UpdateUser(ctx, u); err != nil {
		return e.internal(ctx, "password.update", err)
	}
	if _, err := e.sessions.RevokeAllForUser(ctx, u.TenantID, u.ID); err != nil {
		return e.internal(ctx, "password.revoke_sessions", err)
	}
	return nil
}
