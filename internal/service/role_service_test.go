package service

import (
	"context"
	"testing"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoleFixture(t *testing.T) (RoleService, *fakeRoleRepo, *recordingInvalidator, *recordingAudit) {
	t.Helper()
	repo := newFakeRoleRepo()
	invalidator := &recordingInvalidator{}
	audit := &recordingAudit{}
	return NewRoleService(repo, invalidator, audit), repo, invalidator, audit
}

func TestSeedDefaultRolesAndPermissions(t *testing.T) {
	svc, repo, _, _ := newRoleFixture(t)

	require.NoError(t, svc.SeedDefaultRolesAndPermissions(context.Background()))

	for _, name := range []string{"admin", "manager", "technician"} {
		role, err := repo.FindByName(context.Background(), name)
		require.NoError(t, err, "role %q", name)
		assert.True(t, role.IsSystem)
	}

	perms, err := repo.ListPermissions(context.Background())
	require.NoError(t, err)
	codes := make(map[string]bool, len(perms))
	for _, p := range perms {
		codes[p.Code] = true
	}
	for _, code := range []string{"jobs.view", "team.manage", "roles.manage", "audit.view", "invoices.delete"} {
		assert.True(t, codes[code], "missing seeded permission %q", code)
	}

	// Seeding again must not duplicate roles or permissions.
	require.NoError(t, svc.SeedDefaultRolesAndPermissions(context.Background()))
	again, err := repo.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Len(t, again, len(perms))
}

func TestDeleteSystemRoleConflicts(t *testing.T) {
	svc, repo, invalidator, _ := newRoleFixture(t)

	system := &model.Role{Name: "admin", IsSystem: true}
	require.NoError(t, repo.Create(context.Background(), system))
	custom := &model.Role{Name: "dispatcher"}
	require.NoError(t, repo.Create(context.Background(), custom))

	err := svc.DeleteRole(context.Background(), system.ID.String())
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.Zero(t, invalidator.allCount)

	require.NoError(t, svc.DeleteRole(context.Background(), custom.ID.String()))
	assert.Equal(t, 1, invalidator.allCount)
}

func TestUpdateRolePermissionsInvalidatesEveryone(t *testing.T) {
	svc, repo, invalidator, audit := newRoleFixture(t)

	role := &model.Role{Name: "dispatcher"}
	require.NoError(t, repo.Create(context.Background(), role))
	perm := repo.addPermission("schedule.manage")

	actor := &authz.Identity{UserID: uuid.New(), CompanyID: uuid.New(), CoarseRole: model.CoarseRoleAdmin}
	_, err := svc.UpdateRolePermissions(context.Background(), actor, role.ID.String(), UpdateRolePermissionsRequest{
		PermissionIDs: []string{perm.ID.String()},
	}, "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, 1, invalidator.allCount)
	assert.Len(t, audit.byAction(model.ActionRolePermissionsUpdated), 1)
}
