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

// PermissionInvalidator is the cache-dropping slice of the resolver. Every
// mutation to role assignments or overrides must go through it before the
// mutation's own response is returned.
type PermissionInvalidator interface {
	Invalidate(userID uuid.UUID)
	InvalidateAll()
}

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Rank        int      `json:"rank"`
	Permissions []string `json:"permissions"` // Permission UUIDs
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Rank        int    `json:"rank"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Rank        int                  `json:"rank"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// PermissionGroup is the category-grouped listing for administrative UIs.
type PermissionGroup struct {
	Group       string               `json:"group"`
	Permissions []PermissionResponse `json:"permissions"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissionsGrouped(ctx context.Context) ([]PermissionGroup, error)
	UpdateRolePermissions(ctx context.Context, actor *authz.Identity, roleID string, req UpdateRolePermissionsRequest, ip string) (*RoleResponse, error)
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	repo        repository.RoleRepository
	invalidator PermissionInvalidator
	audit       AuditService
}

func NewRoleService(repo repository.RoleRepository, invalidator PermissionInvalidator, audit AuditService) RoleService {
	return &roleService{repo: repo, invalidator: invalidator, audit: audit}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := tenant.RequireIdentifier(id, "role id")
	if err != nil {
		return nil, err
	}

	role, err := s.repo.FindByIDWithPermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	role := &model.Role{
		Name:        req.Name,
		Description: req.Description,
		Rank:        req.Rank,
		IsSystem:    false,
	}

	if err := s.repo.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if len(req.Permissions) > 0 {
		permIDs := make([]uuid.UUID, 0, len(req.Permissions))
		for _, pid := range req.Permissions {
			parsed, parseErr := tenant.RequireIdentifier(pid, "permission id")
			if parseErr != nil {
				return nil, parseErr
			}
			permIDs = append(permIDs, parsed)
		}
		if err := s.repo.UpdatePermissions(ctx, role.ID, permIDs); err != nil {
			return nil, fmt.Errorf("failed to assign permissions: %w", err)
		}
	}

	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := tenant.RequireIdentifier(id, "role id")
	if err != nil {
		return nil, err
	}

	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	role.Name = req.Name
	role.Description = req.Description
	role.Rank = req.Rank

	if err := s.repo.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := tenant.RequireIdentifier(id, "role id")
	if err != nil {
		return err
	}

	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return err
	}

	if role.IsSystem {
		return apperror.Newf(apperror.KindConflict, "cannot delete system role '%s'", role.Name)
	}

	if err := s.repo.Delete(ctx, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	// Users holding the deleted role fall back to their coarse role.
	s.invalidator.InvalidateAll()
	return nil
}

func (s *roleService) ListPermissionsGrouped(ctx context.Context) ([]PermissionGroup, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	// Repo orders by group then code; fold adjacent rows into groups.
	var groups []PermissionGroup
	for _, p := range perms {
		if len(groups) == 0 || groups[len(groups)-1].Group != p.Group {
			groups = append(groups, PermissionGroup{Group: p.Group})
		}
		g := &groups[len(groups)-1]
		g.Permissions = append(g.Permissions, toPermissionResponse(p))
	}
	return groups, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, actor *authz.Identity, roleID string, req UpdateRolePermissionsRequest, ip string) (*RoleResponse, error) {
	id, err := tenant.RequireIdentifier(roleID, "role id")
	if err != nil {
		return nil, err
	}

	permIDs := make([]uuid.UUID, 0, len(req.PermissionIDs))
	for _, pid := range req.PermissionIDs {
		parsed, parseErr := tenant.RequireIdentifier(pid, "permission id")
		if parseErr != nil {
			return nil, parseErr
		}
		permIDs = append(permIDs, parsed)
	}

	if err := s.repo.UpdatePermissions(ctx, id, permIDs); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}

	// A role's permission list affects every user holding it; drop the whole
	// cache before this request is acknowledged.
	s.invalidator.InvalidateAll()

	if actor != nil {
		if err := s.audit.Record(ctx, AuditEvent{
			ActorID:   &actor.UserID,
			Action:    model.ActionRolePermissionsUpdated,
			Details:   map[string]interface{}{"role_id": id.String(), "permission_count": len(permIDs)},
			IPAddress: ip,
		}); err != nil {
			return nil, err
		}
	}

	return s.GetRole(ctx, roleID)
}

// SeedDefaultRolesAndPermissions creates the default catalog and system roles
// if not already present.
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	defaultPermissions := []model.Permission{
		{Code: "dashboard.view", Name: "View dashboard", Group: "dashboard"},
		{Code: "schedule.view", Name: "View schedule", Group: "schedule"},
		{Code: "schedule.manage", Name: "Manage schedule", Group: "schedule"},
		{Code: "jobs.view", Name: "View jobs", Group: "jobs"},
		{Code: "jobs.manage", Name: "Manage jobs", Group: "jobs"},
		{Code: "clients.view", Name: "View clients", Group: "clients"},
		{Code: "clients.manage", Name: "Manage clients", Group: "clients"},
		{Code: "invoices.view", Name: "View invoices", Group: "invoices"},
		{Code: "invoices.create", Name: "Create invoices", Group: "invoices"},
		{Code: "invoices.delete", Name: "Delete invoices", Group: "invoices"},
		{Code: "team.view", Name: "View team", Group: "team"},
		{Code: "team.manage", Name: "Manage team", Group: "team"},
		{Code: "roles.manage", Name: "Manage roles and permissions", Group: "roles"},
		{Code: "audit.view", Name: "View audit log", Group: "audit"},
	}

	for i := range defaultPermissions {
		if err := s.repo.FindOrCreatePermission(ctx, &defaultPermissions[i]); err != nil {
			return fmt.Errorf("failed to seed permission '%s': %w", defaultPermissions[i].Code, err)
		}
	}

	permByCode := make(map[string]model.Permission, len(defaultPermissions))
	for _, p := range defaultPermissions {
		permByCode[p.Code] = p
	}

	roleDefinitions := []struct {
		Name        string
		Description string
		Rank        int
		PermCodes   []string
	}{
		{
			Name:        "admin",
			Description: "Company administrator with full access",
			Rank:        100,
			PermCodes: []string{
				"dashboard.view", "schedule.view", "schedule.manage",
				"jobs.view", "jobs.manage",
				"clients.view", "clients.manage",
				"invoices.view", "invoices.create", "invoices.delete",
				"team.view", "team.manage", "roles.manage",
				"audit.view",
			},
		},
		{
			Name:        "manager",
			Description: "Manages scheduling, clients, and invoicing",
			Rank:        50,
			PermCodes: []string{
				"dashboard.view", "schedule.view", "schedule.manage",
				"jobs.view", "jobs.manage",
				"clients.view", "clients.manage",
				"invoices.view", "invoices.create",
				"team.view", "audit.view",
			},
		},
		{
			Name:        "technician",
			Description: "Field technician with day-to-day access",
			Rank:        10,
			PermCodes: []string{
				"schedule.view", "jobs.view", "clients.view",
			},
		},
	}

	for _, def := range roleDefinitions {
		role, err := s.repo.FindByName(ctx, def.Name)
		if err != nil {
			if !apperror.IsKind(err, apperror.KindNotFound) {
				return err
			}
			role = &model.Role{
				Name:        def.Name,
				Description: def.Description,
				Rank:        def.Rank,
				IsSystem:    true,
			}
			if err := s.repo.Create(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}
		}

		permIDs := make([]uuid.UUID, 0, len(def.PermCodes))
		for _, code := range def.PermCodes {
			if p, ok := permByCode[code]; ok {
				permIDs = append(permIDs, p.ID)
			}
		}
		if err := s.repo.UpdatePermissions(ctx, role.ID, permIDs); err != nil {
			return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
		}
	}

	return nil
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		Rank:        r.Rank,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:    p.ID.String(),
		Code:  p.Code,
		Name:  p.Name,
		Group: p.Group,
	}
}
