package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/SametHaymana/merco-api/storage"
)

const userColumns = `id, tenant_id, email, phone, email_verified, phone_verified, password_hash,
	metadata, mfa_enabled, mfa_secret, backup_codes, banned, created_at, updated_at, last_sign_in_at`

func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	meta := u.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(`+userColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		u.ID, u.TenantID, u.Email, nullIfEmpty(u.Phone), u.EmailVerified, u.PhoneVerified,
		nullIfEmpty(u.PasswordHash), []byte(meta), u.MFAEnabled, nullIfEmpty(u.MFASecret),
		jsonStrings(u.BackupCodes), u.Banned, u.CreatedAt, u.UpdatedAt, nullTime(u.LastSignInAt),
	)
	return mapWriteErr(err)
}

func (s *Store) UserByID(ctx context.Context, tenantID, userID string) (*storage.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where tenant_id=$1 and id=$2`, tenantID, userID))
}

func (s *Store) UserByEmail(ctx context.Context, tenantID, email string) (*storage.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where tenant_id=$1 and lower(email)=lower($2)`, tenantID, email))
}

func (s *Store) UserByPhone(ctx context.Context, tenantID, phone string) (*storage.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where tenant_id=$1 and phone=$2`, tenantID, phone))
}

func (s *Store) UpdateUser(ctx context.Context, u *storage.User) error {
	meta := u.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	res, err := s.db.ExecContext(ctx,
		`update users set email=$3, phone=$4, email_verified=$5, phone_verified=$6, password_hash=$7,
		 metadata=$8, mfa_enabled=$9, mfa_secret=$10, backup_codes=$11, banned=$12, updated_at=$13,
		 last_sign_in_at=$14
		 where tenant_id=$1 and id=$2`,
		u.TenantID, u.ID, u.Email, nullIfEmpty(u.Phone), u.EmailVerified, u.PhoneVerified,
		nullIfEmpty(u.PasswordHash), []byte(meta), u.MFAEnabled, nullIfEmpty(u.MFASecret),
		jsonStrings(u.BackupCodes), u.Banned, u.UpdatedAt, nullTime(u.LastSignInAt),
	)
	return expectOne(res, err)
}

// ConsumeBackupCode removes hash only while the array still holds it, so two
// concurrent callers cannot both spend the same code.
func (s *Store) ConsumeBackupCode(ctx context.Context, tenantID, userID, hash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set backup_codes = backup_codes - $3, updated_at=$4
		 where tenant_id=$1 and id=$2 and backup_codes ? $3`,
		tenantID, userID, hash, now)
	return expectOne(res, err)
}

func (s *Store) RecordSignIn(ctx context.Context, tenantID, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_sign_in_at=$3, updated_at=$3 where tenant_id=$1 and id=$2`,
		tenantID, userID, at)
	return expectOne(res, err)
}

func (s *Store) scanUser(row *sql.Row) (*storage.User, error) {
	var (
		u                        storage.User
		phone, pwHash, mfaSecret sql.NullString
		metadata, backupCodes    []byte
		lastSignIn               sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &phone, &u.EmailVerified, &u.PhoneVerified, &pwHash,
		&metadata, &u.MFAEnabled, &mfaSecret, &backupCodes, &u.Banned, &u.CreatedAt, &u.UpdatedAt, &lastSignIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	u.Phone = phone.String
	u.PasswordHash = pwHash.String
	u.MFASecret = mfaSecret.String
	u.Metadata = json.RawMessage(metadata)
	u.BackupCodes = parseStrings(backupCodes)
	u.LastSignInAt = timePtr(lastSignIn)
	return &u, nil
}
