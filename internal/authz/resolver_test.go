package authz

import (
	"context"
	"io"
	"testing"
	"time"

	"fieldops/internal/model"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	users map[uuid.UUID]*model.User
	calls int
	err   error
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	return u, nil
}

type fakeRoleStore struct {
	byName map[string]*model.Role
	codes  map[uuid.UUID][]string
}

func (f *fakeRoleStore) FindByName(_ context.Context, name string) (*model.Role, error) {
	r, ok := f.byName[name]
	if !ok {
		return nil, apperror.NotFound("role")
	}
	return r, nil
}

func (f *fakeRoleStore) PermissionCodesByRoleID(_ context.Context, roleID uuid.UUID) ([]string, error) {
	return f.codes[roleID], nil
}

type fakeOverrideStore struct {
	overrides map[uuid.UUID][]model.PermissionOverride
}

func (f *fakeOverrideStore) ListForUser(_ context.Context, userID uuid.UUID) ([]model.PermissionOverride, error) {
	return f.overrides[userID], nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func override(mode, code string) model.PermissionOverride {
	return model.PermissionOverride{
		PermissionID: uuid.New(),
		Permission:   &model.Permission{Code: code},
		Mode:         mode,
	}
}

func newTestResolver(users *fakeUserStore, roles *fakeRoleStore, overrides *fakeOverrideStore) *Resolver {
	return NewResolver(users, roles, overrides, NewPermissionCache(16, time.Minute), testLogger())
}

func TestResolveAppliesOverridesToRoleBase(t *testing.T) {
	roleID := uuid.New()
	userID := uuid.New()

	users := &fakeUserStore{users: map[uuid.UUID]*model.User{
		userID: {ID: userID, RoleID: &roleID, Role: model.CoarseRoleTechnician},
	}}
	roles := &fakeRoleStore{codes: map[uuid.UUID][]string{
		roleID: {"jobs.view", "schedule.view"},
	}}
	overrides := &fakeOverrideStore{overrides: map[uuid.UUID][]model.PermissionOverride{
		userID: {
			override(model.OverrideModeRevoke, "jobs.view"),
			override(model.OverrideModeGrant, "invoices.create"),
		},
	}}

	r := newTestResolver(users, roles, overrides)
	set, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, []string{"invoices.create", "schedule.view"}, set.Codes())
	assert.False(t, set.Has("jobs.view"))
}

func TestResolveIsIdempotentAndCached(t *testing.T) {
	roleID := uuid.New()
	userID := uuid.New()

	users := &fakeUserStore{users: map[uuid.UUID]*model.User{
		userID: {ID: userID, RoleID: &roleID},
	}}
	roles := &fakeRoleStore{codes: map[uuid.UUID][]string{roleID: {"jobs.view"}}}
	r := newTestResolver(users, roles, &fakeOverrideStore{})

	first, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, first.Codes(), second.Codes())
	assert.Equal(t, 1, users.calls, "second resolve must come from cache")
}

func TestResolveOverrideOrderIndependence(t *testing.T) {
	roleID := uuid.New()
	forward := []model.PermissionOverride{
		override(model.OverrideModeGrant, "invoices.create"),
		override(model.OverrideModeRevoke, "jobs.view"),
	}
	reversed := []model.PermissionOverride{forward[1], forward[0]}

	var got [][]string
	for _, stored := range [][]model.PermissionOverride{forward, reversed} {
		userID := uuid.New()
		users := &fakeUserStore{users: map[uuid.UUID]*model.User{
			userID: {ID: userID, RoleID: &roleID},
		}}
		roles := &fakeRoleStore{codes: map[uuid.UUID][]string{roleID: {"jobs.view", "schedule.view"}}}
		overrides := &fakeOverrideStore{overrides: map[uuid.UUID][]model.PermissionOverride{userID: stored}}

		r := newTestResolver(users, roles, overrides)
		set, err := r.Resolve(context.Background(), userID)
		require.NoError(t, err)
		got = append(got, set.Codes())
	}

	assert.Equal(t, got[0], got[1])
}

func TestResolveUnknownUserYieldsEmptySet(t *testing.T) {
	r := newTestResolver(&fakeUserStore{}, &fakeRoleStore{}, &fakeOverrideStore{})

	set, err := r.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, set.Codes())
	assert.False(t, set.Has("jobs.view"))
}

func TestResolveLegacyCoarseRoleFallback(t *testing.T) {
	adminRole := &model.Role{ID: uuid.New(), Name: "admin"}
	technicianRole := &model.Role{ID: uuid.New(), Name: "technician"}
	roles := &fakeRoleStore{
		byName: map[string]*model.Role{"admin": adminRole, "technician": technicianRole},
		codes: map[uuid.UUID][]string{
			adminRole.ID:      {"roles.manage", "team.manage"},
			technicianRole.ID: {"jobs.view"},
		},
	}

	cases := []struct {
		coarse string
		want   []string
	}{
		{model.CoarseRoleOwner, []string{"roles.manage", "team.manage"}},
		{model.CoarseRoleStaff, []string{"jobs.view"}},
		{"", []string{"jobs.view"}},
		{"some_unknown_value", []string{"jobs.view"}},
	}

	for _, tc := range cases {
		userID := uuid.New()
		users := &fakeUserStore{users: map[uuid.UUID]*model.User{
			userID: {ID: userID, Role: tc.coarse},
		}}
		r := newTestResolver(users, roles, &fakeOverrideStore{})

		set, err := r.Resolve(context.Background(), userID)
		require.NoError(t, err, "coarse role %q", tc.coarse)
		assert.ElementsMatch(t, tc.want, set.Codes(), "coarse role %q", tc.coarse)
	}
}

func TestInvalidateMakesNextResolveFresh(t *testing.T) {
	roleID := uuid.New()
	userID := uuid.New()

	users := &fakeUserStore{users: map[uuid.UUID]*model.User{
		userID: {ID: userID, RoleID: &roleID},
	}}
	roles := &fakeRoleStore{codes: map[uuid.UUID][]string{roleID: {"jobs.view"}}}
	overrides := &fakeOverrideStore{overrides: map[uuid.UUID][]model.PermissionOverride{}}

	r := newTestResolver(users, roles, overrides)
	set, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, set.Has("jobs.view"))

	// Mutate durable state, then invalidate the way every write path does.
	overrides.overrides[userID] = []model.PermissionOverride{override(model.OverrideModeRevoke, "jobs.view")}
	r.Invalidate(userID)

	set, err = r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, set.Has("jobs.view"))
}

func TestValidateLegacyDefaults(t *testing.T) {
	complete := &fakeRoleStore{byName: map[string]*model.Role{
		"admin":      {ID: uuid.New(), Name: "admin"},
		"manager":    {ID: uuid.New(), Name: "manager"},
		"technician": {ID: uuid.New(), Name: "technician"},
	}}
	r := newTestResolver(&fakeUserStore{}, complete, &fakeOverrideStore{})
	require.NoError(t, r.ValidateLegacyDefaults(context.Background()))

	missing := &fakeRoleStore{byName: map[string]*model.Role{
		"admin":   {ID: uuid.New(), Name: "admin"},
		"manager": {ID: uuid.New(), Name: "manager"},
	}}
	r = newTestResolver(&fakeUserStore{}, missing, &fakeOverrideStore{})
	assert.Error(t, r.ValidateLegacyDefaults(context.Background()))
}
