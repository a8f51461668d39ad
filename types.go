package merco

import (
	"encoding/json"
	"time"

	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/session"
	"github.com/SametHaymana/merco-api/storage"
)

// User is the public view of a principal. Secrets never appear here.
type User struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Email         string          `json:"email"`
	EmailVerified bool            `json:"email_verified"`
	Phone         string          `json:"phone,omitempty"`
	PhoneVerified bool            `json:"phone_verified"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	MFAEnabled    bool            `json:"mfa_enabled"`
	Banned        bool            `json:"banned,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	LastSignInAt  *time.Time      `json:"last_sign_in_at,omitempty"`
}

func publicUser(u *storage.User) User {
	return User{
		ID:            u.ID,
		TenantID:      u.TenantID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
		Metadata:      u.Metadata,
		MFAEnabled:    u.MFAEnabled,
		Banned:        u.Banned,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastSignInAt:  u.LastSignInAt,
	}
}

// AuthResult is returned by every flow that ends in a new or rotated session.
type AuthResult struct {
	User         User      `json:"user"`
	SessionID    string    `json:"session_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newAuthResult(u *storage.User, s *session.Session, now time.Time) *AuthResult {
	return &AuthResult{
		User:         publicUser(u),
		SessionID:    s.ID,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessExpiresAt.Sub(now).Seconds()),
		ExpiresAt:    s.AccessExpiresAt,
	}
}

// SignInRequest carries a password sign-in attempt. MFACode is a TOTP code or
// a backup code and is only consulted when the account has MFA enabled.
type SignInRequest struct {
	TenantID string `json:"-"`
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

// Channel selects OTP delivery.
type Channel = notify.Channel

const (
	ChannelEmail = notify.ChannelEmail
	ChannelSMS   = notify.ChannelSMS
)

// Identity is the verified caller behind an access token.
type Identity struct {
	UserID      string
	TenantID    string
	SessionID   string
	Roles       []string
	Permissions []string
	ExpiresAt   time.Time
}

// MFAEnrollment is returned by EnrollTOTP. The secret is not active until ConfirmTOTP.
type MFAEnrollment struct {
	Secret string `json:"secret"`
	QRURL  string `json:"qr_url"`
}

// APIKeyInfo is the public view of an API key.
type APIKeyInfo struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// CreatedAPIKey carries the raw key, shown exactly once.
type CreatedAPIKey struct {
	APIKeyInfo
	Key string `json:"key"`
}

func publicAPIKey(k *storage.APIKey) APIKeyInfo {
	return APIKeyInfo{
		ID:        k.ID,
		TenantID:  k.TenantID,
		Name:      k.Name,
		Prefix:    k.Prefix,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
		Active:    k.Active,
	}
}

// Role is the public view of a tenant role.
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

func publicRole(r *storage.Role) Role {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return Role{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
	}
}

// RoleInput creates or replaces a role definition.
type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

// SweepReport summarizes one cleanup pass.
type SweepReport struct {
	Sessions int `json:"sessions"`
	Tokens   int `json:"tokens"`
}
