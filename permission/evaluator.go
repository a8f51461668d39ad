package permission

import (
	"context"
	"errors"
	"fmt"
)

// ErrDenied is returned by Check when no effective permission matches.
var ErrDenied = errors.New("permission: denied")

// Role is the slice of a role the evaluator needs.
type Role struct {
	Name        string
	Permissions []string
}

// RoleSource lists the roles assigned to a user within a tenant.
type RoleSource interface {
	AssignedRoles(ctx context.Context, tenantID, userID string) ([]Role, error)
}

// RoleSourceFunc adapts a function to RoleSource.
type RoleSourceFunc func(ctx context.Context, tenantID, userID string) ([]Role, error)

// AssignedRoles calls f.
func (f RoleSourceFunc) AssignedRoles(ctx context.Context, tenantID, userID string) ([]Role, error) {
	return f(ctx, tenantID, userID)
}

// Evaluator resolves effective permissions from role assignments.
type Evaluator struct {
	source RoleSource
}

// NewEvaluator returns an evaluator reading from source.
func NewEvaluator(source RoleSource) *Evaluator {
	return &Evaluator{source: source}
}

// Effective is the resolved authorization state of a principal.
type Effective struct {
	Roles       []string
	Permissions Set
}

// EffectivePermissions unions the permissions of every role assigned to userID.
// Stored permissions that fail to parse are skipped.
func (e *Evaluator) EffectivePermissions(ctx context.Context, tenantID, userID string) (Effective, error) {
	roles, err := e.source.AssignedRoles(ctx, tenantID, userID)
	if err != nil {
		return Effective{}, fmt.Errorf("load roles: %w", err)
	}

	eff := Effective{Roles: make([]string, 0, len(roles)), Permissions: make(Set)}
	for _, r := range roles {
		eff.Roles = append(eff.Roles, r.Name)
		for _, raw := range r.Permissions {
			p, err := Parse(raw)
			if err != nil {
				continue
			}
			eff.Permissions.Add(p)
		}
	}
	return eff, nil
}

// Check returns nil when userID holds a permission matching required, ErrDenied otherwise.
func (e *Evaluator) Check(ctx context.Context, tenantID, userID string, required Permission) error {
	eff, err := e.EffectivePermissions(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !eff.Permissions.Allows(required) {
		return ErrDenied
	}
	return nil
}
