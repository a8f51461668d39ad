package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SametHaymana/merco-api/internal"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/storage"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("credential: invalid credentials")
	// ErrBanned is returned when the principal exists but is banned.
	ErrBanned = errors.New("credential: banned")
	// ErrInvalidToken is returned for a wrong, expired or already used single-use token.
	ErrInvalidToken = errors.New("credential: invalid token")
	// ErrInvalidAPIKey is returned for an unknown or deactivated API key.
	ErrInvalidAPIKey = errors.New("credential: invalid api key")
	// ErrAPIKeyExpired is returned for an API key past its expiry.
	ErrAPIKeyExpired = errors.New("credential: api key expired")
)

// APIKeyPrefixLen is how much of a raw key is kept for display.
const APIKeyPrefixLen = 12

// Hasher is the password hashing capability the verifier needs.
type Hasher interface {
	Verify(password, encoded string) (bool, error)
	VerifyDummy(password string)
}

// Verifier checks credentials against the stores.
//
// Verifier is safe for concurrent use when its stores are.
type Verifier struct {
	users  storage.UserStore
	tokens storage.TokenStore
	keys   storage.APIKeyStore
	hasher Hasher
	now    func() time.Time
}

// NewVerifier wires the verifier. Any store may be nil when the matching
// proof type is not used.
func NewVerifier(users storage.UserStore, tokens storage.TokenStore, keys storage.APIKeyStore, hasher Hasher) *Verifier {
	return &Verifier{users: users, tokens: tokens, keys: keys, hasher: hasher, now: time.Now}
}

// WithClock replaces the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// VerifyPassword authenticates email/password within tenantID.
//
// Banned users are rejected with ErrBanned before any hash compare.
func (v *Verifier) VerifyPassword(ctx context.Context, tenantID, email, pw string) (*storage.User, error) {
	u, err := v.users.UserByEmail(ctx, tenantID, password.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			v.hasher.VerifyDummy(pw)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.Banned {
		return nil, ErrBanned
	}
	if err := v.CheckPassword(u, pw); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckPassword compares pw against u's stored hash.
func (v *Verifier) CheckPassword(u *storage.User, pw string) error {
	if u.PasswordHash == "" {
		v.hasher.VerifyDummy(pw)
		return ErrInvalidCredentials
	}
	ok, err := v.hasher.Verify(pw, u.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrMalformedHash) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifySingleUseToken consumes the token matching raw. Consumption is atomic
// in the store, so of two concurrent calls with the same secret at most one
// succeeds.
func (v *Verifier) VerifySingleUseToken(ctx context.Context, tenantID string, kind storage.TokenKind, identifier, raw string) (*storage.VerificationToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	lookup := storage.TokenLookup{
		TenantID:   tenantID,
		Kind:       kind,
		SecretHash: internal.HashSecret(raw),
	}
	if kind.Scoped() {
		if identifier == "" {
			return nil, ErrInvalidToken
		}
		lookup.Identifier = identifier
	}

	tok, err := v.tokens.ConsumeToken(ctx, lookup, v.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return tok, nil
}

// APIKeyContext is the verified identity of an API key.
type APIKeyContext struct {
	KeyID    string
	TenantID string
	Name     string
	Prefix   string
}

// VerifyAPIKey resolves a raw mk_ key.
func (v *Verifier) VerifyAPIKey(ctx context.Context, raw string) (*APIKeyContext, error) {
	if !internal.HasPrefixedShape(raw, internal.APIKeyPrefix, internal.APIKeyBodyLen) {
		return nil, ErrInvalidAPIKey
	}

	k, err := v.keys.APIKeyByHash(ctx, internal.HashSecret(raw))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if !k.Active {
		return nil, ErrInvalidAPIKey
	}
	if k.ExpiresAt != nil && !v.now().Before(*k.ExpiresAt) {
		return nil, ErrAPIKeyExpired
	}

	return &APIKeyContext{KeyID: k.ID, TenantID: k.TenantID, Name: k.Name, Prefix: k.Prefix}, nil
}

// KeyPrefix returns the display prefix of a raw API key.
func KeyPrefix(raw string) string {
	if len(raw) <= APIKeyPrefixLen {
		return raw
	}
	return raw[:APIKeyPrefixLen]
}
