package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fieldops/internal/model"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserStore provides the user lookups the resolver needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// RoleStore provides role and role-permission lookups.
type RoleStore interface {
	FindByName(ctx context.Context, name string) (*model.Role, error)
	PermissionCodesByRoleID(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// OverrideStore lists a user's permission overrides with the permission
// association populated.
type OverrideStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.PermissionOverride, error)
}

// legacyRoleDefaults maps every known coarse role value to the default role
// resolved for users that predate role assignments. Unknown values fall
// through to the most restrictive role. The table is validated against the
// role store at startup.
var legacyRoleDefaults = map[string]string{
	model.CoarseRoleOwner:      "admin",
	model.CoarseRoleAdmin:      "admin",
	model.CoarseRoleManager:    "manager",
	model.CoarseRoleStaff:      "technician",
	model.CoarseRoleTechnician: "technician",
	"":                         "technician",
}

const legacyFallbackRole = "technician"

// Resolver computes a user's effective permission set: the role-derived base
// set, plus grant overrides, minus revoke overrides. Results are cached per
// user; every role or override mutation must call Invalidate before the
// mutating request is acknowledged.
//
// Resolver is a leaf: the gate depends on it, never the reverse.
type Resolver struct {
	users     UserStore
	roles     RoleStore
	overrides OverrideStore
	cache     *PermissionCache
	log       *logrus.Logger

	fallbackSeen sync.Map // coarse role -> struct{}, first-use logging
}

// NewResolver wires the resolver onto its stores and the startup-constructed
// cache.
func NewResolver(users UserStore, roles RoleStore, overrides OverrideStore, cache *PermissionCache, log *logrus.Logger) *Resolver {
	return &Resolver{
		users:     users,
		roles:     roles,
		overrides: overrides,
		cache:     cache,
		log:       log,
	}
}

// ValidateLegacyDefaults verifies every role named by the fallback table
// exists. Run at startup so a missing default role is a boot failure, not a
// per-request surprise.
func (r *Resolver) ValidateLegacyDefaults(ctx context.Context) error {
	names := map[string]struct{}{legacyFallbackRole: {}}
	for _, name := range legacyRoleDefaults {
		names[name] = struct{}{}
	}
	for name := range names {
		if _, err := r.roles.FindByName(ctx, name); err != nil {
			return fmt.Errorf("legacy fallback role '%s' missing: %w", name, err)
		}
	}
	return nil
}

// Resolve returns the user's effective permission set. An unknown user
// resolves to the empty set: absence fails closed, never open.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	if set, ok := r.cache.Get(userID); ok {
		return set, nil
	}

	// Two concurrent misses may both recompute; the value is a pure function
	// of durable state read at this moment, so the duplicate work is the only
	// cost. The generation keeps a pre-mutation computation from overwriting
	// a post-mutation invalidation.
	generation := r.cache.Generation(userID)

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			return PermissionSet{}, nil
		}
		return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
	}

	codes, err := r.baseCodes(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
	}
	set := NewPermissionSet(codes...)

	overrides, err := r.overrides.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve overrides for %s: %w", userID, err)
	}
	// Grants first, then revokes, so the result is independent of storage
	// order even if both modes ever appeared for the same key.
	for _, o := range overrides {
		if o.Mode == model.OverrideModeGrant && o.Permission != nil {
			set[o.Permission.Code] = struct{}{}
		}
	}
	for _, o := range overrides {
		if o.Mode == model.OverrideModeRevoke && o.Permission != nil {
			delete(set, o.Permission.Code)
		}
	}

	r.cache.Set(userID, set, generation)
	return set, nil
}

// Invalidate drops the user's cached set. Must run before the response of
// any mutation to that user's role or overrides.
func (r *Resolver) Invalidate(userID uuid.UUID) {
	r.cache.Invalidate(userID)
}

// InvalidateAll drops every cached set, e.g. after a role's permission list
// changed.
func (r *Resolver) InvalidateAll() {
	r.cache.InvalidateAll()
}

func (r *Resolver) baseCodes(ctx context.Context, user *model.User) ([]string, error) {
	if user.RoleID != nil {
		return r.roles.PermissionCodesByRoleID(ctx, *user.RoleID)
	}

	coarse := strings.ToLower(strings.TrimSpace(user.Role))
	name, ok := legacyRoleDefaults[coarse]
	if !ok {
		name = legacyFallbackRole
	}
	legacyFallbacks.WithLabelValues(coarse).Inc()
	if _, seen := r.fallbackSeen.LoadOrStore(coarse, struct{}{}); !seen {
		r.log.WithFields(logrus.Fields{
			"coarse_role":  coarse,
			"default_role": name,
		}).Warn("legacy coarse-role fallback in use")
	}

	role, err := r.roles.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("legacy default role '%s': %w", name, err)
	}
	return r.roles.PermissionCodesByRoleID(ctx, role.ID)
}
