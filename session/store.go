package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session matches the lookup.
	ErrNotFound = errors.New("session: not found")
	// ErrRefreshMismatch is returned by RotateRefresh when the stored refresh
	// hash no longer equals the presented one, or the session was revoked.
	ErrRefreshMismatch = errors.New("session: refresh hash mismatch")
	// ErrRedisUnavailable wraps Redis failures from RedisStore.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Store persists sessions. Implementations must make RotateRefresh a single
// compare-and-swap on the current refresh hash.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	Session(ctx context.Context, sessionID string) (*Session, error)
	SessionByRefreshHash(ctx context.Context, refreshHash string) (*Session, error)
	RotateRefresh(ctx context.Context, sessionID, currentHash string, next Rotation) error
	// RevokeSession marks the session revoked. A missing session yields ErrNotFound;
	// revoking an already revoked session succeeds.
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeUserSessions(ctx context.Context, tenantID, userID string) (int, error)
	RevokeExpiredSessions(ctx context.Context, now time.Time) (int, error)
}
