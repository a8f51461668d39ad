package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("storage: conflict")
)

// User is an end-user principal. A user belongs to exactly one tenant.
type User struct {
	ID            string
	TenantID      string
	Email         string
	Phone         string
	EmailVerified bool
	PhoneVerified bool
	PasswordHash  string
	Metadata      json.RawMessage
	MFAEnabled    bool
	MFASecret     string
	BackupCodes   []string
	Banned        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastSignInAt  *time.Time
}

// TokenKind classifies a single-use verification token.
type TokenKind string

const (
	TokenOTP           TokenKind = "otp"
	TokenMagicLink     TokenKind = "magic_link"
	TokenPasswordReset TokenKind = "password_reset"
)

// Scoped reports whether lookups of this kind must also match the identifier.
// Numeric OTP codes are short, so they are only unique per delivery target.
func (k TokenKind) Scoped() bool {
	return k == TokenOTP
}

// VerificationToken is a single-use secret bound to a delivery target.
type VerificationToken struct {
	ID         string
	TenantID   string
	Kind       TokenKind
	Identifier string
	UserID     string
	SecretHash string
	ExpiresAt  time.Time
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// Consumable reports whether the token may still be redeemed at now.
func (t *VerificationToken) Consumable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// TokenLookup selects the token a Consume call targets.
type TokenLookup struct {
	TenantID   string
	Kind       TokenKind
	Identifier string
	SecretHash string
}

// APIKey is a tenant-scoped key. Only its hash and display prefix are stored.
type APIKey struct {
	ID        string
	TenantID  string
	Name      string
	Hash      string
	Prefix    string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Active    bool
}

// Role is a named permission set within a tenant.
type Role struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Permissions []string
	CreatedAt   time.Time
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, tenantID, userID string) (*User, error)
	UserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	UserByPhone(ctx context.Context, tenantID, phone string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	// ConsumeBackupCode atomically removes hash from the user's backup codes.
	// A missing user or an already spent code yields ErrNotFound.
	ConsumeBackupCode(ctx context.Context, tenantID, userID, hash string, now time.Time) error
	// RecordSignIn sets last_sign_in_at without touching any other column.
	RecordSignIn(ctx context.Context, tenantID, userID string, at time.Time) error
}

// TokenStore persists single-use verification tokens.
type TokenStore interface {
	PutToken(ctx context.Context, t *VerificationToken) error
	// ConsumeToken atomically marks the matching unused, unexpired token as
	// used at now and returns it. Anything else yields ErrNotFound.
	ConsumeToken(ctx context.Context, lookup TokenLookup, now time.Time) (*VerificationToken, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *APIKey) error
	APIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID string) ([]APIKey, error)
	DeactivateAPIKey(ctx context.Context, tenantID, keyID string) error
}

// RoleStore persists roles and their assignment to users.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	Role(ctx context.Context, tenantID, roleID string) (*Role, error)
	Roles(ctx context.Context, tenantID string) ([]Role, error)
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, tenantID, roleID string) error
	AssignRole(ctx context.Context, tenantID, userID, roleID string) error
	UnassignRole(ctx context.Context, tenantID, userID, roleID string) error
	UserRoles(ctx context.Context, tenantID, userID string) ([]Role, error)
}

// Storage bundles every entity capability a relational backend provides.
type Storage interface {
	UserStore
	TokenStore
	APIKeyStore
	RoleStore
}
