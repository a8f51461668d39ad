package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/SametHaymana/merco-api/session"
	"github.com/SametHaymana/merco-api/storage"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return New(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
		_ = db.Close()
	}
}

var userRowColumns = []string{"id", "tenant_id", "email", "phone", "email_verified", "phone_verified", "password_hash",
	"metadata", "mfa_enabled", "mfa_secret", "backup_codes", "banned", "created_at", "updated_at", "last_sign_in_at"}

func TestUserByEmail(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectQuery(`select .* from users where tenant_id=\$1 and lower\(email\)=lower\(\$2\)`).
		WithArgs("T", "a@b.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"u1", "T", "a@b.com", nil, true, false, "$argon2id$x",
			[]byte(`{"plan":"pro"}`), false, nil, []byte(`["h1","h2"]`), false, now, now, nil,
		))

	u, err := store.UserByEmail(context.Background(), "T", "a@b.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if u.ID != "u1" || !u.EmailVerified || u.PasswordHash != "$argon2id$x" || u.Phone != "" {
		t.Fatalf("unexpected user %+v", u)
	}
	if string(u.Metadata) != `{"plan":"pro"}` || len(u.BackupCodes) != 2 || u.LastSignInAt != nil {
		t.Fatalf("unexpected decoded fields %+v", u)
	}
}

func TestUserByIDNotFound(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(`select .* from users where tenant_id=\$1 and id=\$2`).
		WithArgs("T", "missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.UserByID(context.Background(), "T", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserConflict(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateUser(context.Background(), &storage.User{ID: "u1", TenantID: "T", Email: "a@b.com"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestConsumeToken(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	lookup := storage.TokenLookup{TenantID: "T", Kind: storage.TokenOTP, Identifier: "a@b.com", SecretHash: "h"}

	mock.ExpectQuery(regexp.QuoteMeta(`update verification_tokens set used_at=$1`)).
		WithArgs(now, "T", "otp", "h", "a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "kind", "identifier", "user_id", "secret_hash", "expires_at", "used_at", "created_at"}).
			AddRow("01H", "T", "otp", "a@b.com", nil, "h", now.Add(10*time.Minute), now, now.Add(-time.Minute)))

	tok, err := store.ConsumeToken(context.Background(), lookup, now)
	if err != nil {
		t.Fatalf("ConsumeToken: %v", err)
	}
	if tok.Kind != storage.TokenOTP || tok.UsedAt == nil || !tok.UsedAt.Equal(now) {
		t.Fatalf("unexpected token %+v", tok)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`update verification_tokens set used_at=$1`)).
		WithArgs(now, "T", "otp", "h", "a@b.com").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.ConsumeToken(context.Background(), lookup, now); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
}

func TestRotateRefreshCompareAndSwap(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	next := session.Rotation{RefreshHash: "new", ExpiresAt: now.Add(time.Hour), LastActiveAt: now}

	mock.ExpectExec(regexp.QuoteMeta(`update sessions set refresh_token_hash=$3`)).
		WithArgs("sess_1", "old", "new", next.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RotateRefresh(context.Background(), "sess_1", "old", next); err != nil {
		t.Fatalf("RotateRefresh: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`update sessions set refresh_token_hash=$3`)).
		WithArgs("sess_1", "old", "new", next.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.RotateRefresh(context.Background(), "sess_1", "old", next); !errors.Is(err, session.ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch, got %v", err)
	}
}

func TestRevokeSessionMissing(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`update sessions set revoked=true where id=\$1`).
		WithArgs("sess_x").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.RevokeSession(context.Background(), "sess_x"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound, got %v", err)
	}
}

func TestRevokeExpiredSessions(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec(`update sessions set revoked=true where expires_at <= \$1 and not revoked`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RevokeExpiredSessions(context.Background(), now)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 revoked, got %d err=%v", n, err)
	}
}

func TestUserRoles(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectQuery(`select r.id, .* from roles r join user_roles ur`).
		WithArgs("T", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "description", "permissions", "created_at"}).
			AddRow("r1", "T", "admin", "", []byte(`["*"]`), now).
			AddRow("r2", "T", "reader", "read only", []byte(`["posts:read"]`), now))

	roles, err := store.UserRoles(context.Background(), "T", "u1")
	if err != nil {
		t.Fatalf("UserRoles: %v", err)
	}
	if len(roles) != 2 || roles[0].Permissions[0] != "*" || roles[1].Permissions[0] != "posts:read" {
		t.Fatalf("unexpected roles %+v", roles)
	}
}

func TestDeactivateAPIKeyNotFound(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`update api_keys set is_active=false`).
		WithArgs("T", "k1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.DeactivateAPIKey(context.Background(), "T", "k1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrateSkipsApplied(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("0001_init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("0001_init.sql").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("0001_init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestConsumeBackupCodeOnlyWhilePresent(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	query := `update users set backup_codes = backup_codes - \$3, updated_at=\$4\s+where tenant_id=\$1 and id=\$2 and backup_codes \? \$3`

	mock.ExpectExec(query).WithArgs("T", "u1", "h1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.ConsumeBackupCode(context.Background(), "T", "u1", "h1", now); err != nil {
		t.Fatalf("ConsumeBackupCode: %v", err)
	}

	mock.ExpectExec(query).WithArgs("T", "u1", "h1", now).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.ConsumeBackupCode(context.Background(), "T", "u1", "h1", now); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for spent code, got %v", err)
	}
}

func TestRecordSignInTouchesTimestampOnly(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta(`update users set last_sign_in_at=$3, updated_at=$3 where tenant_id=$1 and id=$2`)).
		WithArgs("T", "u1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RecordSignIn(context.Background(), "T", "u1", now); err != nil {
		t.Fatalf("RecordSignIn: %v", err)
	}
}
