package merco

import (
	"context"
	"reflect"
	"testing"
)

func TestRoleAdministration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	role, err := env.engine.CreateRole(ctx, "T", RoleInput{
		Name:        " viewer ",
		Description: "read only",
		Permissions: []string{"docs:read", "docs:read", "users:read"},
	})
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if role.Name != "viewer" || !reflect.DeepEqual(role.Permissions, []string{"docs:read", "users:read"}) {
		t.Fatalf("unexpected role %+v", role)
	}

	_, err = env.engine.CreateRole(ctx, "T", RoleInput{Name: "viewer"})
	expectErr(t, err, ErrRoleExists)
	if _, err := env.engine.CreateRole(ctx, "T2", RoleInput{Name: "viewer"}); err != nil {
		t.Fatalf("same role name in another tenant failed: %v", err)
	}

	updated, err := env.engine.UpdateRole(ctx, "T", role.ID, RoleInput{Name: "reader", Permissions: []string{"docs:*"}})
	if err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	if updated.Name != "reader" || !reflect.DeepEqual(updated.Permissions, []string{"docs:*"}) {
		t.Fatalf("unexpected updated role %+v", updated)
	}
	_, err = env.engine.UpdateRole(ctx, "T2", role.ID, RoleInput{Name: "x"})
	expectErr(t, err, ErrRoleNotFound)

	roles, err := env.engine.ListRoles(ctx, "T")
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if len(roles) != 1 || roles[0].ID != role.ID {
		t.Fatalf("unexpected roles %+v", roles)
	}

	if err := env.engine.DeleteRole(ctx, "T", role.ID); err != nil {
		t.Fatalf("DeleteRole failed: %v", err)
	}
	expectErr(t, env.engine.DeleteRole(ctx, "T", role.ID), ErrRoleNotFound)
}

func TestCreateRoleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, in := range []RoleInput{
		{Name: ""},
		{Name: "x", Permissions: []string{"no-colon"}},
		{Name: "x", Permissions: []string{"a:b:c"}},
	} {
		_, err := env.engine.CreateRole(ctx, "T", in)
		expectErr(t, err, ErrInvalidInput)
	}
}

func TestRoleAssignmentAndEffectivePermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	reader, err := env.engine.CreateRole(ctx, "T", RoleInput{Name: "reader", Permissions: []string{"docs:read"}})
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	writer, err := env.engine.CreateRole(ctx, "T", RoleInput{Name: "writer", Permissions: []string{"docs:write", "docs:read"}})
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}

	for _, r := range []*Role{reader, writer} {
		if err := env.engine.AssignRole(ctx, "T", res.User.ID, r.ID); err != nil {
			t.Fatalf("AssignRole failed: %v", err)
		}
	}
	if err := env.engine.AssignRole(ctx, "T", res.User.ID, reader.ID); err != nil {
		t.Fatalf("repeated AssignRole failed: %v", err)
	}

	perms, err := env.engine.EffectivePermissions(ctx, "T", res.User.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions failed: %v", err)
	}
	if !reflect.DeepEqual(perms, []string{"docs:read", "docs:write"}) {
		t.Fatalf("unexpected effective permissions %v", perms)
	}

	if err := env.engine.CheckPermission(ctx, "T", res.User.ID, "docs:write"); err != nil {
		t.Fatalf("CheckPermission failed: %v", err)
	}
	expectErr(t, env.engine.CheckPermission(ctx, "T", res.User.ID, "docs:delete"), ErrPermissionDenied)
	expectErr(t, env.engine.CheckPermission(ctx, "T", res.User.ID, "bad"), ErrInvalidInput)

	if err := env.engine.UnassignRole(ctx, "T", res.User.ID, writer.ID); err != nil {
		t.Fatalf("UnassignRole failed: %v", err)
	}
	expectErr(t, env.engine.CheckPermission(ctx, "T", res.User.ID, "docs:write"), ErrPermissionDenied)

	expectErr(t, env.engine.AssignRole(ctx, "T", "missing", reader.ID), ErrUserNotFound)
	expectErr(t, env.engine.AssignRole(ctx, "T", res.User.ID, "missing"), ErrRoleNotFound)
	expectErr(t, env.engine.AssignRole(ctx, "T2", res.User.ID, reader.ID), ErrUserNotFound)
}

func TestAuthorizeUsesTokenPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	role, err := env.engine.CreateRole(ctx, "T", RoleInput{Name: "docs", Permissions: []string{"docs:*"}})
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if err := env.engine.AssignRole(ctx, "T", res.User.ID, role.ID); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}

	// The sign-up token predates the assignment.
	before, err := env.engine.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	expectErr(t, env.engine.Authorize(ctx, before, "docs:read"), ErrPermissionDenied)

	in := env.signIn(t, "T", "a@b.com", "Passw0rd!")
	after, err := env.engine.Authenticate(ctx, in.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := env.engine.Authorize(ctx, after, "docs:delete"); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	expectErr(t, env.engine.Authorize(ctx, after, "billing:read"), ErrPermissionDenied)
	expectErr(t, env.engine.Authorize(ctx, after, "malformed"), ErrInvalidInput)
	expectErr(t, env.engine.Authorize(ctx, nil, "docs:read"), ErrInvalidToken)

	if got := env.engine.MetricsSnapshot().Counters[MetricPermissionDenied]; got != 2 {
		t.Fatalf("expected 2 denials, got %d", got)
	}
}
