package merco

import (
	"errors"
	"strings"
	"time"

	"github.com/SametHaymana/merco-api/password"
)

// Config defines a public type used by merco APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
// Every field carries an env tag; internal/config overlays MERCO_-prefixed variables on DefaultConfig.
type Config struct {
	JWT           JWTConfig           `envPrefix:"JWT_"`
	Session       SessionConfig       `envPrefix:"SESSION_"`
	Password      password.Config     `envPrefix:"PASSWORD_"`
	OTP           OTPConfig           `envPrefix:"OTP_"`
	MagicLink     MagicLinkConfig     `envPrefix:"MAGIC_LINK_"`
	PasswordReset PasswordResetConfig `envPrefix:"PASSWORD_RESET_"`
	MFA           MFAConfig           `envPrefix:"MFA_"`
	RateLimit     RateLimitConfig     `envPrefix:"RATE_LIMIT_"`
	Audit         AuditConfig         `envPrefix:"AUDIT_"`
	Metrics       MetricsConfig       `envPrefix:"METRICS_"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token signing and refresh token lifetime.
//
// With SigningMethod "hs256" Secret is the shared key (at least 32 bytes).
// With "ed25519" PrivateKey and PublicKey hold PEM blocks.
type JWTConfig struct {
	AccessTTL     time.Duration `env:"ACCESS_TTL"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL"`
	SigningMethod string        `env:"SIGNING_METHOD"`
	Secret        string        `env:"SECRET"`
	PrivateKey    string        `env:"PRIVATE_KEY"`
	PublicKey     string        `env:"PUBLIC_KEY"`
	Issuer        string        `env:"ISSUER"`
	Audience      string        `env:"AUDIENCE"`
	Leeway        time.Duration `env:"LEEWAY"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig applies to the Redis session store. Retention is how long a
// revoked or expired session stays readable before Redis evicts it.
type SessionConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	Retention   time.Duration `env:"RETENTION"`
}

/*
====================================
PASSWORDLESS CONFIG
====================================
*/

// OTPConfig controls numeric one-time codes.
type OTPConfig struct {
	Digits int           `env:"DIGITS"`
	TTL    time.Duration `env:"TTL"`
}

// MagicLinkConfig controls sign-in links. BaseURL receives the token as the
// "token" query parameter.
type MagicLinkConfig struct {
	TTL     time.Duration `env:"TTL"`
	BaseURL string        `env:"BASE_URL"`
}

// PasswordResetConfig controls reset links.
type PasswordResetConfig struct {
	TTL     time.Duration `env:"TTL"`
	BaseURL string        `env:"BASE_URL"`
}

/*
====================================
MFA CONFIG
====================================
*/

type MFAConfig struct {
	Issuer           string `env:"ISSUER"`
	Skew             int    `env:"SKEW"`
	BackupCodeCount  int    `env:"BACKUP_CODE_COUNT"`
	BackupCodeLength int    `env:"BACKUP_CODE_LENGTH"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sizes the fixed admission windows.
//
// Requests/Window is the per-caller HTTP budget. SignIn* bounds password
// attempts per tenant and email; OTP* bounds code sends per identifier;
// Verify* bounds OTP redemptions per identifier and TOTP checks per user.
// Backend is "memory" or "redis".
type RateLimitConfig struct {
	Backend        string        `env:"BACKEND"`
	RedisPrefix    string        `env:"REDIS_PREFIX"`
	Requests       int           `env:"REQUESTS"`
	Window         time.Duration `env:"WINDOW"`
	SignInAttempts int           `env:"SIGNIN_ATTEMPTS"`
	SignInWindow   time.Duration `env:"SIGNIN_WINDOW"`
	OTPSends       int           `env:"OTP_SENDS"`
	OTPWindow      time.Duration `env:"OTP_WINDOW"`
	VerifyAttempts int           `env:"VERIFY_ATTEMPTS"`
	VerifyWindow   time.Duration `env:"VERIFY_WINDOW"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns production defaults. JWT.Secret must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "merco-auth",
		},
		Session: SessionConfig{
			RedisPrefix: "merco:sess:",
			Retention:   7 * 24 * time.Hour,
		},
		Password: password.DefaultConfig(),
		OTP: OTPConfig{
			Digits: 6,
			TTL:    10 * time.Minute,
		},
		MagicLink: MagicLinkConfig{
			TTL:     15 * time.Minute,
			BaseURL: "http://localhost:8080/v1/auth/magic-link/verify",
		},
		PasswordReset: PasswordResetConfig{
			TTL:     time.Hour,
			BaseURL: "http://localhost:8080/reset-password",
		},
		MFA: MFAConfig{
			Issuer:           "Merco Auth",
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		RateLimit: RateLimitConfig{
			Backend:        "memory",
			RedisPrefix:    "merco:rl:",
			Requests:       60,
			Window:         time.Minute,
			SignInAttempts: 10,
			SignInWindow:   15 * time.Minute,
			OTPSends:       5,
			OTPWindow:      15 * time.Minute,
			VerifyAttempts: 5,
			VerifyWindow:   15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first configuration error found; it does not mutate c.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	// -------- JWT --------
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "", "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("JWT Secret must be at least 32 bytes for hs256")
		}
	case "ed25519":
		if c.JWT.PrivateKey == "" {
			return errors.New("JWT PrivateKey required for ed25519")
		}
	default:
		return errors.New("JWT SigningMethod must be hs256 or ed25519")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// -------- SESSION --------
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}

	// -------- PASSWORD --------
	if err := c.Password.Validate(); err != nil {
		return err
	}

	// -------- PASSWORDLESS --------
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be within [6, 10]")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.MagicLink.TTL <= 0 {
		return errors.New("MagicLink TTL must be > 0")
	}
	if c.MagicLink.BaseURL == "" {
		return errors.New("MagicLink BaseURL must not be empty")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if c.PasswordReset.BaseURL == "" {
		return errors.New("PasswordReset BaseURL must not be empty")
	}

	// -------- MFA --------
	if c.MFA.Skew < 0 || c.MFA.Skew > 3 {
		return errors.New("MFA Skew must be within [0, 3]")
	}
	if c.MFA.BackupCodeCount <= 0 || c.MFA.BackupCodeCount > 32 {
		return errors.New("MFA BackupCodeCount must be within [1, 32]")
	}
	if c.MFA.BackupCodeLength < 6 || c.MFA.BackupCodeLength > 32 {
		return errors.New("MFA BackupCodeLength must be within [6, 32]")
	}

	// -------- RATE LIMIT --------
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return errors.New("RateLimit Backend must be memory or redis")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Requests and Window must be > 0")
	}
	if c.RateLimit.SignInAttempts <= 0 || c.RateLimit.SignInWindow <= 0 {
		return errors.New("RateLimit SignInAttempts and SignInWindow must be > 0")
	}
	if c.RateLimit.OTPSends <= 0 || c.RateLimit.OTPWindow <= 0 {
		return errors.New("RateLimit OTPSends and OTPWindow must be > 0")
	}
	if c.RateLimit.VerifyAttempts <= 0 || c.RateLimit.VerifyWindow <= 0 {
		return errors.New("RateLimit VerifyAttempts and VerifyWindow must be > 0")
	}

	// -------- AUDIT --------
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
