package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SametHaymana/merco-api/storage"
)

func (s *Store) PutToken(ctx context.Context, t *storage.VerificationToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into verification_tokens(id, tenant_id, kind, identifier, user_id, secret_hash, expires_at, used_at, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.TenantID, string(t.Kind), t.Identifier, nullIfEmpty(t.UserID), t.SecretHash,
		t.ExpiresAt, nullTime(t.UsedAt), t.CreatedAt,
	)
	return mapWriteErr(err)
}

// ConsumeToken marks the matching token used in one statement. An empty
// identifier in the lookup matches any identifier.
func (s *Store) ConsumeToken(ctx context.Context, l storage.TokenLookup, now time.Time) (*storage.VerificationToken, error) {
	row := s.db.QueryRowContext(ctx,
		`update verification_tokens set used_at=$1
		 where id = (
		   select id from verification_tokens
		   where tenant_id=$2 and kind=$3 and secret_hash=$4
		     and ($5 = '' or identifier=$5)
		     and used_at is null and expires_at > $1
		   order by created_at desc
		   limit 1
		   for update skip locked
		 ) and used_at is null
		 returning id, tenant_id, kind, identifier, user_id, secret_hash, expires_at, used_at, created_at`,
		now, l.TenantID, string(l.Kind), l.SecretHash, l.Identifier,
	)

	var (
		t      storage.VerificationToken
		kind   string
		userID sql.NullString
		usedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.TenantID, &kind, &t.Identifier, &userID, &t.SecretHash, &t.ExpiresAt, &usedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	t.Kind = storage.TokenKind(kind)
	t.UserID = userID.String
	t.UsedAt = timePtr(usedAt)
	return &t, nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from verification_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
