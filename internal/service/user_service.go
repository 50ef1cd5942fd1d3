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
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
	RoleID   string `json:"role_id"`
}

type AssignRoleRequest struct {
	RoleID *string `json:"role_id"` // null clears the assignment, falling back to the coarse role
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID uuid.UUID  `json:"company_id"`
	RoleID    *uuid.UUID `json:"role_id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// MeResponse is the caller's own identity plus effective permissions.
type MeResponse struct {
	User          UserResponse `json:"user"`
	Permissions   []string     `json:"permissions"`
	Impersonating bool         `json:"impersonating"`
}

// UserService covers team administration, always scoped to the caller's
// tenant.
type UserService interface {
	CreateUser(ctx context.Context, actor *authz.Identity, req CreateUserRequest) (*UserResponse, error)
	GetUser(ctx context.Context, actor *authz.Identity, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, actor *authz.Identity, page, limit int) ([]UserResponse, int64, error)
	AssignRole(ctx context.Context, actor *authz.Identity, id string, req AssignRoleRequest, ip string) (*UserResponse, error)
	DeleteUser(ctx context.Context, actor *authz.Identity, id string) error
	Me(ctx context.Context, ident *authz.Identity) (*MeResponse, error)
}

type userService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	resolver    PermissionResolver
	invalidator PermissionInvalidator
	audit       AuditService
}

// NewUserService returns a new instance of UserService
func NewUserService(users repository.UserRepository, roles repository.RoleRepository, resolver PermissionResolver, invalidator PermissionInvalidator, audit AuditService) UserService {
	return &userService{
		users:       users,
		roles:       roles,
		resolver:    resolver,
		invalidator: invalidator,
		audit:       audit,
	}
}

// Helper: coarse roles assignable through team administration. The platform
// operator sentinel is deliberately absent.
func validCoarseRole(role string) bool {
	switch role {
	case model.CoarseRoleOwner, model.CoarseRoleAdmin, model.CoarseRoleManager,
		model.CoarseRoleStaff, model.CoarseRoleTechnician:
		return true
	}
	return false
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		CompanyID: user.CompanyID,
		RoleID:    user.RoleID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *userService) scopedUser(ctx context.Context, actor *authz.Identity, id string) (*model.User, error) {
	if err := tenant.RequireContext(actor.CompanyID); err != nil {
		return nil, err
	}
	userID, err := tenant.RequireIdentifier(id, "user id")
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tenant.ScopeAndValidate(user, actor.CompanyID, "user")
}

func (s *userService) CreateUser(ctx context.Context, actor *authz.Identity, req CreateUserRequest) (*UserResponse, error) {
	if err := tenant.RequireContext(actor.CompanyID); err != nil {
		return nil, err
	}
	if !validCoarseRole(req.Role) {
		return nil, apperror.Newf(apperror.KindInvalidArgument, "invalid role '%s'", req.Role)
	}

	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperror.Conflict("username already exists")
	}
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Conflict("email already exists")
	}

	var roleID *uuid.UUID
	if req.RoleID != "" {
		parsed, err := tenant.RequireIdentifier(req.RoleID, "role id")
		if err != nil {
			return nil, err
		}
		if _, err := s.roles.FindByID(ctx, parsed); err != nil {
			return nil, err
		}
		roleID = &parsed
	}

	// Hash password automatically
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		CompanyID: actor.CompanyID,
		RoleID:    roleID,
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hashedPassword),
		Role:      req.Role,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) GetUser(ctx context.Context, actor *authz.Identity, id string) (*UserResponse, error) {
	user, err := s.scopedUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, actor *authz.Identity, page, limit int) ([]UserResponse, int64, error) {
	if err := tenant.RequireContext(actor.CompanyID); err != nil {
		return nil, 0, err
	}

	users, total, err := s.users.ListByCompany(ctx, actor.CompanyID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}

	return responses, total, nil
}

// AssignRole sets or clears a user's role assignment and invalidates their
// cached permission set before returning.
func (s *userService) AssignRole(ctx context.Context, actor *authz.Identity, id string, req AssignRoleRequest, ip string) (*UserResponse, error) {
	user, err := s.scopedUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	var roleID *uuid.UUID
	details := map[string]interface{}{"role_id": nil}
	if req.RoleID != nil {
		parsed, parseErr := tenant.RequireIdentifier(*req.RoleID, "role id")
		if parseErr != nil {
			return nil, parseErr
		}
		if _, findErr := s.roles.FindByID(ctx, parsed); findErr != nil {
			return nil, findErr
		}
		roleID = &parsed
		details["role_id"] = parsed.String()
	}

	if err := s.users.SetRole(ctx, user.ID, roleID); err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}
	user.RoleID = roleID

	s.invalidator.Invalidate(user.ID)

	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:         &actor.UserID,
		Action:          model.ActionRoleAssigned,
		TargetCompanyID: &user.CompanyID,
		TargetUserID:    &user.ID,
		Details:         details,
		IPAddress:       ip,
	}); err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, actor *authz.Identity, id string) error {
	user, err := s.scopedUser(ctx, actor, id)
	if err != nil {
		return err
	}
	if user.ID == actor.UserID {
		return apperror.Conflict("cannot delete your own account")
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}
	s.invalidator.Invalidate(user.ID)
	return nil
}

func (s *userService) Me(ctx context.Context, ident *authz.Identity) (*MeResponse, error) {
	if ident == nil {
		return nil, apperror.AuthenticationRequired("authentication required")
	}

	user, err := s.users.GetByID(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}

	set, err := s.resolver.Resolve(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}

	return &MeResponse{
		User:          *mapToResponse(user),
		Permissions:   set.Codes(),
		Impersonating: ident.Impersonated(),
	}, nil
}
