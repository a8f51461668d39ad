package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SametHaymana/merco-api/session"
)

const sessionColumns = `id, user_id, tenant_id, refresh_token_hash, ip, user_agent,
	created_at, expires_at, last_active_at, revoked`

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(`+sessionColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sess.ID, sess.UserID, sess.TenantID, sess.RefreshHash, sess.IP, sess.UserAgent,
		sess.CreatedAt, sess.ExpiresAt, sess.LastActiveAt, sess.Revoked,
	)
	return mapWriteErr(err)
}

func (s *Store) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, sessionID))
}

func (s *Store) SessionByRefreshHash(ctx context.Context, refreshHash string) (*session.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where refresh_token_hash=$1`, refreshHash))
}

// RotateRefresh is the compare-and-swap: it only matches while the row still
// holds currentHash and is not revoked.
func (s *Store) RotateRefresh(ctx context.Context, sessionID, currentHash string, next session.Rotation) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set refresh_token_hash=$3, expires_at=$4, last_active_at=$5
		 where id=$1 and refresh_token_hash=$2 and not revoked`,
		sessionID, currentHash, next.RefreshHash, next.ExpiresAt, next.LastActiveAt,
	)
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrRefreshMismatch
	}
	return nil
}

func (s *Store) RevokeSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `update sessions set revoked=true where id=$1`, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked=true where tenant_id=$1 and user_id=$2 and not revoked`, tenantID, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) RevokeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked=true where expires_at <= $1 and not revoked`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanSession(row *sql.Row) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TenantID, &sess.RefreshHash, &sess.IP, &sess.UserAgent,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.LastActiveAt, &sess.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}
