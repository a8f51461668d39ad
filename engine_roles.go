package merco

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/permission"
	"github.com/SametHaymana/merco-api/storage"
)

const maxRoleName = 100

func (e *Engine) roleSource() permission.RoleSource {
	return permission.RoleSourceFunc(func(ctx context.Context, tenantID, userID string) ([]permission.Role, error) {
		rs, err := e.roles.UserRoles(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
		out := make([]permission.Role, len(rs))
		for i, r := range rs {
			out[i] = permission.Role{Name: r.Name, Permissions: r.Permissions}
		}
		return out, nil
	})
}

func validateRoleInput(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > maxRoleName {
		return in, invalidInput(errors.New("role name must be 1..100 characters"))
	}
	perms, err := permission.Normalize(in.Permissions)
	if err != nil {
		return in, invalidInput(err)
	}
	in.Permissions = perms
	return in, nil
}

// CreateRole defines a role in tenantID. Names are unique per tenant.
func (e *Engine) CreateRole(ctx context.Context, tenantID string, in RoleInput) (*Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	in, err := validateRoleInput(in)
	if err != nil {
		return nil, err
	}
	r := &storage.Role{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		Permissions: in.Permissions,
		CreatedAt:   e.now(),
	}
	if err := e.roles.CreateRole(ctx, r); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, e.internal(ctx, "role.create", err)
	}
	out := publicRole(r)
	return &out, nil
}

// UpdateRole replaces the name, description and permissions of a role.
// Sessions pick up the change on their next refresh.
func (e *Engine) UpdateRole(ctx context.Context, tenantID, roleID string, in RoleInput) (*Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	in, err := validateRoleInput(in)
	if err != nil {
		return nil, err
	}
	r, err := e.roles.Role(ctx, tenantID, roleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, e.internal(ctx, "role.get", err)
	}
	r.Name, r.Description, r.Permissions = in.Name, in.Description, in.Permissions
	if err := e.roles.UpdateRole(ctx, r); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrRoleExists
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrRoleNotFound
		}
		return nil, e.internal(ctx, "role.update", err)
	}
	out := publicRole(r)
	return &out, nil
}

// DeleteRole removes a role and its assignments.
func (e *Engine) DeleteRole(ctx context.Context, tenantID, roleID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.roles.DeleteRole(ctx, tenantID, roleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoleNotFound
		}
		return e.internal(ctx, "role.delete", err)
	}
	return nil
}

// ListRoles returns every role of the tenant.
func (e *Engine) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	rs, err := e.roles.Roles(ctx, tenantID)
	if err != nil {
		return nil, e.internal(ctx, "role.list", err)
	}
	out := make([]Role, 0, len(rs))
	for i := range rs {
		out = append(out, publicRole(&rs[i]))
	}
	return out, nil
}

// AssignRole grants roleID to userID. Assigning twice is not an error.
func (e *Engine) AssignRole(ctx context.Context, tenantID, userID, roleID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if _, err := e.loadUser(ctx, tenantID, userID); err != nil {
		return err
	}
	if err := e.roles.AssignRole(ctx, tenantID, userID, roleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoleNotFound
		}
		return e.internal(ctx, "role.assign", err)
	}
	e.emitAudit(ctx, audit.TypeRoleAssigned, tenantID, userID, "", nil, func() map[string]string {
		return map[string]string{"role_id": roleID}
	})
	return nil
}

// UnassignRole removes the edge between userID and roleID.
func (e *Engine) UnassignRole(ctx context.Context, tenantID, userID, roleID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.roles.UnassignRole(ctx, tenantID, userID, roleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoleNotFound
		}
		return e.internal(ctx, "role.unassign", err)
	}
	e.emitAudit(ctx, audit.TypeRoleUnassigned, tenantID, userID, "", nil, func() map[string]string {
		return map[string]string{"role_id": roleID}
	})
	return nil
}

// EffectivePermissions returns the union of permissions over the user's roles.
func (e *Engine) EffectivePermissions(ctx context.Context, tenantID, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	eff, err := e.evaluator.EffectivePermissions(ctx, tenantID, userID)
	if err != nil {
		return nil, e.internal(ctx, "permissions.effective", err)
	}
	return eff.Permissions.Strings(), nil
}

// CheckPermission evaluates required against the user's current roles rather
// than the permissions frozen into an access token.
func (e *Engine) CheckPermission(ctx context.Context, tenantID, userID, required string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	want, err := permission.Parse(required)
	if err != nil {
		return invalidInput(err)
	}
	if err := e.evaluator.Check(ctx, tenantID, userID, want); err != nil {
		if errors.Is(err, permission.ErrDenied) {
			e.metricInc(MetricPermissionDenied)
			return ErrPermissionDenied
		}
		return e.internal(ctx, "permissions.check", err)
	}
	return nil
}
