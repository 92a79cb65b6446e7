package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-hq/taskboard/internal/rbac"
)

func TestMemoryStores_PermissionDeleteStripsRoles(t *testing.T) {
	ctx := context.Background()
	roles := rbac.NewMemoryRoleStore()
	perms := rbac.NewMemoryPermissionStore(roles)

	_, err := perms.Create(ctx, rbac.Permission{Code: "report:export", Name: "Export", Category: "reporting"})
	require.NoError(t, err)
	_, err = perms.Create(ctx, rbac.Permission{Code: "report:export"})
	assert.ErrorIs(t, err, rbac.ErrPermissionDuplicate)

	_, err = roles.Create(ctx, rbac.Role{
		Code:        "analyst",
		Permissions: rbac.NewPermissionSet("report:export", rbac.PermTaskRead),
		IsActive:    true,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, perms.Delete(ctx, rbac.PermTaskRead), rbac.ErrPermissionIsSystem)
	assert.ErrorIs(t, perms.Delete(ctx, "nope:nope"), rbac.ErrPermissionNotFound)
	require.NoError(t, perms.Delete(ctx, "report:export"))

	loaded, err := roles.LoadRoles(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, []string{rbac.PermTaskRead}, loaded[0].Permissions.Codes())

	all, err := perms.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(rbac.BuiltinPermissions))
}

func TestMemoryRoleStore_SystemRolesProtected(t *testing.T) {
	ctx := context.Background()
	roles := rbac.NewMemoryRoleStore()

	_, err := roles.Create(ctx, rbac.Role{Code: rbac.RoleReviewer})
	assert.ErrorIs(t, err, rbac.ErrRoleDuplicate)
	_, err = roles.Create(ctx, rbac.Role{Code: "  "})
	assert.ErrorIs(t, err, rbac.ErrRoleCodeEmpty)
	_, err = roles.Update(ctx, rbac.Role{Code: rbac.RoleApplicant})
	assert.ErrorIs(t, err, rbac.ErrRoleIsSystem)
	assert.ErrorIs(t, roles.Delete(ctx, rbac.RoleGlobalAdmin), rbac.ErrRoleIsSystem)

	created, err := roles.Create(ctx, rbac.Role{Code: "helper", IsSystem: true, IsActive: true})
	require.NoError(t, err)
	assert.False(t, created.IsSystem)

	_, err = roles.Update(ctx, rbac.Role{Code: "missing"})
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
	require.NoError(t, roles.Delete(ctx, "helper"))
	assert.ErrorIs(t, roles.Delete(ctx, "helper"), rbac.ErrRoleNotFound)
}

func TestMemoryRoleStore_FeedsCatalog(t *testing.T) {
	ctx := context.Background()
	roles := rbac.NewMemoryRoleStore()
	catalog := rbac.NewCatalog(rbac.WithRoleLoader(roles))

	_, err := roles.Create(ctx, rbac.Role{Code: "viewer", Permissions: rbac.NewPermissionSet(rbac.PermDashboardView), IsActive: true})
	require.NoError(t, err)
	require.NoError(t, catalog.ReloadRoles(ctx))

	role, ok := catalog.Role("viewer")
	require.True(t, ok)
	assert.True(t, role.Permissions.Has(rbac.PermDashboardView))
}
