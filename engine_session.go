package merco

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/session"
	"github.com/SametHaymana/merco-api/storage"
)

// Refresh rotates a refresh token into a new access/refresh pair.
//
// The presented token dies on success. Of several concurrent refreshes with
// the same token exactly one wins; the rest get ErrInvalidToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	var user *storage.User
	load := func(ctx context.Context, tenantID, userID string) (session.Principal, error) {
		u, err := e.loadUser(ctx, tenantID, userID)
		if err != nil {
			return session.Principal{}, err
		}
		if u.Banned {
			return session.Principal{}, ErrForbidden
		}
		user = u
		return e.principal(ctx, u)
	}

	sess, err := e.sessions.Refresh(ctx, refreshToken, load)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidToken):
			err = ErrInvalidToken
		case errors.Is(err, session.ErrExpired):
			err = ErrTokenExpired
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrInternal):
		default:
			err = e.internal(ctx, "session.refresh", err)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, audit.TypeRefresh, "", "", "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, audit.TypeRefresh, sess.TenantID, sess.UserID, sess.ID, nil, nil)
	return newAuthResult(user, sess, e.now()), nil
}

// SignOut revokes one session. Signing out an already revoked session succeeds.
func (e *Engine) SignOut(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return e.internal(ctx, "session.get", err)
	}
	if err := e.sessions.Revoke(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return e.internal(ctx, "session.revoke", err)
	}
	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, audit.TypeSignOut, sess.TenantID, sess.UserID, sess.ID, nil, nil)
	return nil
}

// SignOutAll revokes every session of a user and returns how many were active.
func (e *Engine) SignOutAll(ctx context.Context, tenantID, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.RevokeAllForUser(ctx, tenantID, userID)
	if err != nil {
		return 0, e.internal(ctx, "session.revoke_all", err)
	}
	e.metricInc(MetricSignOutAll)
	e.emitAudit(ctx, audit.TypeSignOutAll, tenantID, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// SessionInfo is the public view of a stored session.
type SessionInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Active       bool      `json:"active"`
}

// Session returns the stored session for sessionID.
func (e *Engine) Session(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, e.internal(ctx, "session.get", err)
	}
	return &SessionInfo{
		ID:           s.ID,
		UserID:       s.UserID,
		TenantID:     s.TenantID,
		IP:           s.IP,
		UserAgent:    s.UserAgent,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
		Active:       s.Usable(e.now()),
	}, nil
}
