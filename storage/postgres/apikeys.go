package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/SametHaymana/merco-api/storage"
)

const apiKeyColumns = `id, tenant_id, name, key_hash, key_prefix, created_at, expires_at, is_active`

func (s *Store) CreateAPIKey(ctx context.Context, k *storage.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`insert into api_keys(`+apiKeyColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8)`,
		k.ID, k.TenantID, k.Name, k.Hash, k.Prefix, k.CreatedAt, nullTime(k.ExpiresAt), k.Active,
	)
	return mapWriteErr(err)
}

func (s *Store) APIKeyByHash(ctx context.Context, hash string) (*storage.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where key_hash=$1`, hash)
	k, err := scanAPIKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, tenantID string) ([]storage.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+apiKeyColumns+` from api_keys where tenant_id=$1 order by created_at asc`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateAPIKey(ctx context.Context, tenantID, keyID string) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set is_active=false where tenant_id=$1 and id=$2`, tenantID, keyID)
	return expectOne(res, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(sc scanner) (*storage.APIKey, error) {
	var (
		k   storage.APIKey
		exp sql.NullTime
	)
	if err := sc.Scan(&k.ID, &k.TenantID, &k.Name, &k.Hash, &k.Prefix, &k.CreatedAt, &exp, &k.Active); err != nil {
		return nil, err
	}
	k.ExpiresAt = timePtr(exp)
	return &k, nil
}
