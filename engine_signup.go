package merco

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/storage"
)

// SignUp registers an email/password principal in tenantID and opens its
// first session.
//
// An existing (tenant, email) pair is reported before shape validation, and a
// concurrent duplicate that slips past the lookup still fails on the store's
// uniqueness constraint with ErrUserExists.
func (e *Engine) SignUp(ctx context.Context, tenantID, email, pw string, metadata json.RawMessage) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if tenantID == "" {
		return nil, invalidInput(errors.New("tenant is required"))
	}
	email = password.NormalizeEmail(email)

	if _, err := e.users.UserByEmail(ctx, tenantID, email); err == nil {
		e.metricInc(MetricSignUpDuplicate)
		e.emitAudit(ctx, audit.TypeSignUp, tenantID, "", "", ErrUserExists, nil)
		return nil, ErrUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, e.internal(ctx, "signup.lookup", err)
	}

	if err := password.ValidateEmail(email); err != nil {
		return nil, invalidInput(err)
	}
	if err := password.ValidatePassword(pw); err != nil {
		return nil, invalidInput(err)
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, invalidInput(errors.New("metadata must be valid JSON"))
	}

	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return nil, e.internal(ctx, "signup.hash", err)
	}

	now := e.now()
	u := &storage.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hash,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.metricInc(MetricSignUpDuplicate)
			return nil, ErrUserExists
		}
		return nil, e.internal(ctx, "signup.create", err)
	}

	res, err := e.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, audit.TypeSignUp, tenantID, u.ID, res.SessionID, nil, nil)
	return res, nil
}
