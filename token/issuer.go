package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SametHaymana/merco-api/internal"
)

// SigningMethod selects the JWS algorithm for access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair (alg EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired is returned when a well-signed token is past its expiry.
	ErrExpired = errors.New("token: expired")
	// ErrInvalid is returned for every other verification failure.
	ErrInvalid = errors.New("token: invalid")
)

// Config defines access and refresh token issuance.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the access token payload.
type Claims struct {
	TenantID    string   `json:"tid"`
	SessionID   string   `json:"sid"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Subject identifies who an access token is minted for.
type Subject struct {
	UserID      string
	TenantID    string
	SessionID   string
	Roles       []string
	Permissions []string
}

// Access is a signed access token and its expiry.
type Access struct {
	Token     string
	ExpiresAt time.Time
}

// Refresh is a freshly minted opaque refresh token. Only Hash is persisted.
type Refresh struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// Issuer mints and verifies access tokens and mints refresh tokens.
//
// Issuer holds no mutable state and is safe for concurrent use.
type Issuer struct {
	config  Config
	method  jwt.SigningMethod
	signKey any
	verKey  any
	now     func() time.Time
}

// NewIssuer validates cfg and resolves the key material once.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}

	iss := &Issuer{config: cfg, now: time.Now}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		iss.method = jwt.SigningMethodHS256
		iss.signKey = cfg.PrivateKey
		iss.verKey = cfg.PrivateKey
	case MethodEd25519:
		iss.method = jwt.SigningMethodEdDSA
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		iss.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			iss.verKey = pub
		} else {
			iss.verKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return iss, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.config.RefreshTTL }

// IssueAccess signs an access token for s valid for AccessTTL from now.
func (i *Issuer) IssueAccess(s Subject) (Access, error) {
	now := i.now()
	exp := now.Add(i.config.AccessTTL)

	claims := Claims{
		TenantID:    s.TenantID,
		SessionID:   s.SessionID,
		Roles:       s.Roles,
		Permissions: s.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    i.config.Issuer,
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signKey)
	if err != nil {
		return Access{}, fmt.Errorf("sign access token: %w", err)
	}
	return Access{Token: signed, ExpiresAt: exp}, nil
}

// VerifyAccess checks signature, algorithm, issuer and audience, then expiry.
// Expiry alone yields ErrExpired; every other failure yields ErrInvalid.
func (i *Issuer) VerifyAccess(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(i.config.Audience))
	}

	claims := &Claims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.verKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.SessionID == "" || claims.TenantID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// IssueRefresh mints an rt_ token with RefreshTTL from now.
func (i *Issuer) IssueRefresh() (Refresh, error) {
	raw, err := internal.NewRefreshToken()
	if err != nil {
		return Refresh{}, err
	}
	return Refresh{
		Token:     raw,
		Hash:      HashRefresh(raw),
		ExpiresAt: i.now().Add(i.config.RefreshTTL),
	}, nil
}

// HashRefresh returns the persisted form of a refresh token.
func HashRefresh(raw string) string {
	return internal.HashSecret(raw)
}

// LooksLikeRefresh is a shape check that avoids store lookups for garbage input.
func LooksLikeRefresh(raw string) bool {
	return internal.HasPrefixedShape(raw, internal.RefreshTokenPrefix, internal.RefreshTokenBodyLen)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
