package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/SametHaymana/merco-api/storage"
)

const roleColumns = `id, tenant_id, name, description, permissions, created_at`

func (s *Store) CreateRole(ctx context.Context, r *storage.Role) error {
	_, err := s.db.ExecContext(ctx,
		`insert into roles(`+roleColumns+`) values($1,$2,$3,$4,$5,$6)`,
		r.ID, r.TenantID, r.Name, r.Description, jsonStrings(r.Permissions), r.CreatedAt,
	)
	return mapWriteErr(err)
}

func (s *Store) Role(ctx context.Context, tenantID, roleID string) (*storage.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where tenant_id=$1 and id=$2`, tenantID, roleID)
	r, err := scanRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) Roles(ctx context.Context, tenantID string) ([]storage.Role, error) {
	return s.queryRoles(ctx,
		`select `+roleColumns+` from roles where tenant_id=$1 order by name asc`, tenantID)
}

func (s *Store) UpdateRole(ctx context.Context, r *storage.Role) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set name=$3, description=$4, permissions=$5 where tenant_id=$1 and id=$2`,
		r.TenantID, r.ID, r.Name, r.Description, jsonStrings(r.Permissions),
	)
	return expectOne(res, err)
}

func (s *Store) DeleteRole(ctx context.Context, tenantID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where tenant_id=$1 and id=$2`, tenantID, roleID)
	return expectOne(res, err)
}

// AssignRole inserts the edge only when both ends belong to tenantID.
func (s *Store) AssignRole(ctx context.Context, tenantID, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id)
		 select u.id, r.id from users u, roles r
		 where u.tenant_id=$1 and u.id=$2 and r.tenant_id=$1 and r.id=$3
		 on conflict (user_id, role_id) do update set role_id = excluded.role_id`,
		tenantID, userID, roleID,
	)
	return expectOne(res, err)
}

func (s *Store) UnassignRole(ctx context.Context, tenantID, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from user_roles ur using roles r
		 where ur.role_id=r.id and r.tenant_id=$1 and ur.user_id=$2 and ur.role_id=$3`,
		tenantID, userID, roleID,
	)
	return expectOne(res, err)
}

func (s *Store) UserRoles(ctx context.Context, tenantID, userID string) ([]storage.Role, error) {
	return s.queryRoles(ctx,
		`select r.id, r.tenant_id, r.name, r.description, r.permissions, r.created_at
		 from roles r join user_roles ur on ur.role_id = r.id
		 where r.tenant_id=$1 and ur.user_id=$2
		 order by r.name asc`, tenantID, userID)
}

func (s *Store) queryRoles(ctx context.Context, query string, args ...any) ([]storage.Role, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRole(sc scanner) (*storage.Role, error) {
	var (
		r     storage.Role
		perms []byte
	)
	if err := sc.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &perms, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Permissions = parseStrings(perms)
	return &r, nil
}
