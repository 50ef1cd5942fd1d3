package service

import (
	"context"
	"io"
	"time"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeUserRepo backs tests with an in-memory user table.
type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user")
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user")
}

func (f *fakeUserRepo) ListByCompany(_ context.Context, companyID uuid.UUID, _, _ int) ([]model.User, int64, error) {
	var users []model.User
	for _, u := range f.users {
		if u.CompanyID == companyID {
			users = append(users, *u)
		}
	}
	return users, int64(len(users)), nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) SetRole(_ context.Context, userID uuid.UUID, roleID *uuid.UUID) error {
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user")
	}
	u.RoleID = roleID
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.users, id)
	return nil
}

// fakeSessionRepo is an in-memory impersonation session store.
type fakeSessionRepo struct {
	sessions map[uuid.UUID]*model.ImpersonationSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*model.ImpersonationSession)}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *model.ImpersonationSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	stored := *session
	f.sessions[session.ID] = &stored
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*model.ImpersonationSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("impersonation session")
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) FindActiveByOperator(_ context.Context, operatorID uuid.UUID) (*model.ImpersonationSession, error) {
	for _, s := range f.sessions {
		if s.OperatorID == operatorID && s.EndedAt == nil {
			copied := *s
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("impersonation session")
}

func (f *fakeSessionRepo) Update(_ context.Context, session *model.ImpersonationSession) error {
	stored := *session
	f.sessions[session.ID] = &stored
	return nil
}

func (f *fakeSessionRepo) ListActiveExpiredBefore(_ context.Context, cutoff time.Time) ([]model.ImpersonationSession, error) {
	var out []model.ImpersonationSession
	for _, s := range f.sessions {
		if s.EndedAt == nil && !s.ExpiresAt.After(cutoff) {
			out = append(out, *s)
		}
	}
	return out, nil
}

// recordingAudit captures Record calls instead of persisting them.
type recordingAudit struct {
	events []AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, event AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) GetAuditLogs(context.Context, int, int) ([]AuditLogResponse, int64, error) {
	return nil, 0, nil
}

func (r *recordingAudit) byAction(action string) []AuditEvent {
	var out []AuditEvent
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// recordingInvalidator notes which users were invalidated and in what order
// relative to other calls.
type recordingInvalidator struct {
	invalidated []uuid.UUID
	allCount    int
}

func (r *recordingInvalidator) Invalidate(userID uuid.UUID) {
	r.invalidated = append(r.invalidated, userID)
}

func (r *recordingInvalidator) InvalidateAll() {
	r.allCount++
}

// staticResolver returns a fixed set for every user.
type staticResolver struct {
	set authz.PermissionSet
}

func (s *staticResolver) Resolve(context.Context, uuid.UUID) (authz.PermissionSet, error) {
	return s.set, nil
}

// passthroughTx runs the function without a real transaction.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// fakeOverrideRepo stores the last replacement per user.
type fakeOverrideRepo struct {
	byUser map[uuid.UUID][]model.PermissionOverride
}

func newFakeOverrideRepo() *fakeOverrideRepo {
	return &fakeOverrideRepo{byUser: make(map[uuid.UUID][]model.PermissionOverride)}
}

func (f *fakeOverrideRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]model.PermissionOverride, error) {
	return f.byUser[userID], nil
}

func (f *fakeOverrideRepo) ReplaceForUser(_ context.Context, userID uuid.UUID, overrides []model.PermissionOverride) error {
	stored := make([]model.PermissionOverride, len(overrides))
	copy(stored, overrides)
	for i := range stored {
		stored[i].UserID = userID
	}
	f.byUser[userID] = stored
	return nil
}

// fakeRoleRepo implements only the lookups the services under test reach.
type fakeRoleRepo struct {
	roles map[uuid.UUID]*model.Role
	perms map[uuid.UUID]model.Permission
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles: make(map[uuid.UUID]*model.Role),
		perms: make(map[uuid.UUID]model.Permission),
	}
}

func (f *fakeRoleRepo) addPermission(code string) model.Permission {
	p := model.Permission{ID: uuid.New(), Code: code}
	f.perms[p.ID] = p
	return p
}

func (f *fakeRoleRepo) Create(_ context.Context, role *model.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) Update(_ context.Context, role *model.Role) error {
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.roles, id)
	return nil
}

func (f *fakeRoleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, apperror.NotFound("role")
	}
	return r, nil
}

func (f *fakeRoleRepo) FindByIDWithPermissions(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRoleRepo) FindByName(_ context.Context, name string) (*model.Role, error) {
	for _, r := range f.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, apperror.NotFound("role")
}

func (f *fakeRoleRepo) ListAll(context.Context) ([]model.Role, error) {
	var out []model.Role
	for _, r := range f.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRoleRepo) ListPermissions(context.Context) ([]model.Permission, error) {
	var out []model.Permission
	for _, p := range f.perms {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRoleRepo) FindPermissionsByIDs(_ context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	var out []model.Permission
	for _, id := range ids {
		if p, ok := f.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) UpdatePermissions(context.Context, uuid.UUID, []uuid.UUID) error {
	return nil
}

func (f *fakeRoleRepo) PermissionCodesByRoleID(context.Context, uuid.UUID) ([]string, error) {
	return nil, nil
}

func (f *fakeRoleRepo) FindOrCreatePermission(_ context.Context, perm *model.Permission) error {
	for _, p := range f.perms {
		if p.Code == perm.Code {
			*perm = p
			return nil
		}
	}
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	f.perms[perm.ID] = *perm
	return nil
}
