package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SametHaymana/merco-api/internal"
	"github.com/SametHaymana/merco-api/token"
)

var (
	// ErrInvalidToken is returned when a refresh token is unknown or lost a rotation race.
	ErrInvalidToken = errors.New("session: invalid refresh token")
	// ErrExpired is returned when the session behind a refresh token is revoked or expired.
	ErrExpired = errors.New("session: expired")
)

// PrincipalLoader re-fetches the principal during refresh. Its errors are
// returned to the caller unchanged, which lets the caller report a deleted or
// banned user in its own vocabulary.
type PrincipalLoader func(ctx context.Context, tenantID, userID string) (Principal, error)

// Manager drives the session lifecycle on top of a Store.
//
// Manager is safe for concurrent use when its Store is.
type Manager struct {
	store  Store
	issuer *token.Issuer
	now    func() time.Time
}

// NewManager returns a manager persisting to store and minting with issuer.
func NewManager(store Store, issuer *token.Issuer) *Manager {
	return &Manager{store: store, issuer: issuer, now: time.Now}
}

// WithClock replaces the time source and propagates it to the issuer.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.issuer = m.issuer.WithClock(now)
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Create mints a session with a fresh access/refresh pair for p.
func (m *Manager) Create(ctx context.Context, p Principal, meta ClientMeta) (*Session, error) {
	now := m.now()

	id, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("mint session id: %w", err)
	}
	refresh, err := m.issuer.IssueRefresh()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	access, err := m.issuer.IssueAccess(subject(p, id))
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:              id,
		UserID:          p.UserID,
		TenantID:        p.TenantID,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
		RefreshToken:    refresh.Token,
		RefreshHash:     refresh.Hash,
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
		CreatedAt:       now,
		ExpiresAt:       refresh.ExpiresAt,
		LastActiveAt:    now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Refresh exchanges refreshToken for a new pair.
//
// Unknown tokens and lost rotation races yield ErrInvalidToken, a revoked or
// expired session yields ErrExpired, and loader errors pass through.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, load PrincipalLoader) (*Session, error) {
	if !token.LooksLikeRefresh(refreshToken) {
		return nil, ErrInvalidToken
	}
	currentHash := token.HashRefresh(refreshToken)

	sess, err := m.store.SessionByRefreshHash(ctx, currentHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := m.now()
	if !sess.Usable(now) {
		return nil, ErrExpired
	}

	p, err := load(ctx, sess.TenantID, sess.UserID)
	if err != nil {
		return nil, err
	}

	refresh, err := m.issuer.IssueRefresh()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	access, err := m.issuer.IssueAccess(subject(p, sess.ID))
	if err != nil {
		return nil, err
	}

	next := Rotation{
		RefreshHash:  refresh.Hash,
		ExpiresAt:    refresh.ExpiresAt,
		LastActiveAt: now,
	}
	if err := m.store.RotateRefresh(ctx, sess.ID, currentHash, next); err != nil {
		if errors.Is(err, ErrRefreshMismatch) || errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	sess.AccessToken = access.Token
	sess.AccessExpiresAt = access.ExpiresAt
	sess.RefreshToken = refresh.Token
	sess.RefreshHash = refresh.Hash
	sess.ExpiresAt = next.ExpiresAt
	sess.LastActiveAt = now
	return sess, nil
}

// Get returns the stored session without its tokens.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Session(ctx, sessionID)
}

// Revoke marks a session revoked. Revoking twice is not an error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.store.RevokeSession(ctx, sessionID)
}

// RevokeAllForUser revokes every session of userID in tenantID and returns how many changed.
func (m *Manager) RevokeAllForUser(ctx context.Context, tenantID, userID string) (int, error) {
	return m.store.RevokeUserSessions(ctx, tenantID, userID)
}

// SweepExpired revokes sessions whose expiry has passed. It is meant for the
// periodic background job, not the request path.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	return m.store.RevokeExpiredSessions(ctx, m.now())
}

func subject(p Principal, sessionID string) token.Subject {
	return token.Subject{
		UserID:      p.UserID,
		TenantID:    p.TenantID,
		SessionID:   sessionID,
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}
}
