package merco

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SametHaymana/merco-api/credential"
	"github.com/SametHaymana/merco-api/internal"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/storage"
)

const maxAPIKeyName = 255

// CreateAPIKey mints an mk_ key for tenantID. The raw key is in the result
// and is never retrievable again. A zero ttl means the key does not expire.
func (e *Engine) CreateAPIKey(ctx context.Context, tenantID, name string, ttl time.Duration) (*CreatedAPIKey, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	name = strings.TrimSpace(name)
	if tenantID == "" {
		return nil, invalidInput(errors.New("tenant is required"))
	}
	if name == "" || len(name) > maxAPIKeyName {
		return nil, invalidInput(errors.New("api key name must be 1..255 characters"))
	}
	if ttl < 0 {
		return nil, invalidInput(errors.New("api key ttl must not be negative"))
	}

	raw, err := internal.NewAPIKey()
	if err != nil {
		return nil, e.internal(ctx, "apikey.generate", err)
	}
	now := e.now()
	k := &storage.APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Hash:      internal.HashSecret(raw),
		Prefix:    credential.KeyPrefix(raw),
		CreatedAt: now,
		Active:    true,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		k.ExpiresAt = &exp
	}
	if err := e.keys.CreateAPIKey(ctx, k); err != nil {
		return nil, e.internal(ctx, "apikey.create", err)
	}

	e.emitAudit(ctx, audit.TypeAPIKeyCreated, tenantID, "", "", nil, func() map[string]string {
		return map[string]string{"key_id": k.ID, "prefix": k.Prefix}
	})
	return &CreatedAPIKey{APIKeyInfo: publicAPIKey(k), Key: raw}, nil
}

// ListAPIKeys returns every key of the tenant, revoked ones included.
func (e *Engine) ListAPIKeys(ctx context.Context, tenantID string) ([]APIKeyInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	keys, err := e.keys.ListAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, e.internal(ctx, "apikey.list", err)
	}
	out := make([]APIKeyInfo, 0, len(keys))
	for i := range keys {
		out = append(out, publicAPIKey(&keys[i]))
	}
	return out, nil
}

// RevokeAPIKey deactivates a key. The row is kept for audit.
func (e *Engine) RevokeAPIKey(ctx context.Context, tenantID, keyID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.keys.DeactivateAPIKey(ctx, tenantID, keyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidAPIKey
		}
		return e.internal(ctx, "apikey.revoke", err)
	}
	e.emitAudit(ctx, audit.TypeAPIKeyRevoked, tenantID, "", "", nil, func() map[string]string {
		return map[string]string{"key_id": keyID}
	})
	return nil
}
