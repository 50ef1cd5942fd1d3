package service

import (
	"context"
	"fmt"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/internal/repository"
	"fieldops/internal/tenant"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
)

// --- DTOs ---

type OverrideChange struct {
	PermissionID string `json:"permission_id" binding:"required"`
	Mode         string `json:"mode" binding:"required,oneof=grant revoke"`
}

type ReplaceOverridesRequest struct {
	Overrides []OverrideChange `json:"overrides" binding:"required"`
}

type OverrideResponse struct {
	PermissionID   string `json:"permission_id"`
	PermissionCode string `json:"permission_code"`
	Mode           string `json:"mode"`
}

// EffectivePermissions combines the resolved set with the raw overrides for
// administrative display.
type EffectivePermissions struct {
	UserID      string             `json:"user_id"`
	Permissions []string           `json:"permissions"`
	Overrides   []OverrideResponse `json:"overrides"`
}

// PermissionResolver is the read slice of the resolver the service needs.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (authz.PermissionSet, error)
}

// PermissionService manages per-user overrides. Its single write path
// replaces the user's full override set and invalidates the cache before
// returning.
type PermissionService interface {
	GetEffectivePermissions(ctx context.Context, actor *authz.Identity, userID string) (*EffectivePermissions, error)
	ReplaceOverrides(ctx context.Context, actor *authz.Identity, userID string, req ReplaceOverridesRequest, ip string) (*EffectivePermissions, error)
}

type permissionService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	overrides   repository.OverrideRepository
	txm         repository.TransactionManager
	resolver    PermissionResolver
	invalidator PermissionInvalidator
	audit       AuditService
}

func NewPermissionService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	overrides repository.OverrideRepository,
	txm repository.TransactionManager,
	resolver PermissionResolver,
	invalidator PermissionInvalidator,
	audit AuditService,
) PermissionService {
	return &permissionService{
		users:       users,
		roles:       roles,
		overrides:   overrides,
		txm:         txm,
		resolver:    resolver,
		invalidator: invalidator,
		audit:       audit,
	}
}

// scopedUser fetches the target user confined to the actor's tenant. A user
// in another company yields NotFound, same as a nonexistent one.
func (s *permissionService) scopedUser(ctx context.Context, actor *authz.Identity, userID string) (*model.User, error) {
	if actor == nil {
		return nil, apperror.AuthenticationRequired("authentication required")
	}
	if err := tenant.RequireContext(actor.CompanyID); err != nil {
		return nil, err
	}
	id, err := tenant.RequireIdentifier(userID, "user id")
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return tenant.ScopeAndValidate(user, actor.CompanyID, "user")
}

func (s *permissionService) GetEffectivePermissions(ctx context.Context, actor *authz.Identity, userID string) (*EffectivePermissions, error) {
	user, err := s.scopedUser(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	set, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	stored, err := s.overrides.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overrides: %w", err)
	}

	return &EffectivePermissions{
		UserID:      user.ID.String(),
		Permissions: set.Codes(),
		Overrides:   toOverrideResponses(stored),
	}, nil
}

func (s *permissionService) ReplaceOverrides(ctx context.Context, actor *authz.Identity, userID string, req ReplaceOverridesRequest, ip string) (*EffectivePermissions, error) {
	user, err := s.scopedUser(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(req.Overrides))
	records := make([]model.PermissionOverride, 0, len(req.Overrides))
	permIDs := make([]uuid.UUID, 0, len(req.Overrides))
	for _, change := range req.Overrides {
		if change.Mode != model.OverrideModeGrant && change.Mode != model.OverrideModeRevoke {
			return nil, apperror.Newf(apperror.KindInvalidArgument, "invalid override mode '%s'", change.Mode)
		}
		permID, parseErr := tenant.RequireIdentifier(change.PermissionID, "permission id")
		if parseErr != nil {
			return nil, parseErr
		}
		if _, dup := seen[permID]; dup {
			return nil, apperror.InvalidArgument("duplicate permission in override set")
		}
		seen[permID] = struct{}{}
		permIDs = append(permIDs, permID)
		records = append(records, model.PermissionOverride{PermissionID: permID, Mode: change.Mode})
	}

	perms, err := s.roles.FindPermissionsByIDs(ctx, permIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) != len(permIDs) {
		return nil, apperror.InvalidArgument("unknown permission in override set")
	}

	// The replacement and its audit entry commit together.
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if txErr := s.overrides.ReplaceForUser(txCtx, user.ID, records); txErr != nil {
			return fmt.Errorf("failed to replace overrides: %w", txErr)
		}
		return s.audit.Record(txCtx, AuditEvent{
			ActorID:         &actor.UserID,
			Action:          model.ActionOverridesReplaced,
			TargetCompanyID: &user.CompanyID,
			TargetUserID:    &user.ID,
			Details:         map[string]interface{}{"override_count": len(records)},
			IPAddress:       ip,
		})
	})
	if err != nil {
		return nil, err
	}

	// Invalidate after commit but before acknowledging: this request's caller
	// must see the new effective set on their very next resolve.
	s.invalidator.Invalidate(user.ID)

	return s.GetEffectivePermissions(ctx, actor, userID)
}

func toOverrideResponses(stored []model.PermissionOverride) []OverrideResponse {
	res := make([]OverrideResponse, 0, len(stored))
	for _, o := range stored {
		resp := OverrideResponse{
			PermissionID: o.PermissionID.String(),
			Mode:         o.Mode,
		}
		if o.Permission != nil {
			resp.PermissionCode = o.Permission.Code
		}
		res = append(res, resp)
	}
	return res
}
