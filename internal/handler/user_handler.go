package handler

import (
	"net/http"

	"fieldops/internal/middleware"
	"fieldops/internal/service"
	"fieldops/pkg/pagination"
	"fieldops/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService       service.UserService
	permissionService service.PermissionService
	auth              *middleware.AuthMiddleware
}

// NewUserHandler sets up the routing dependencies for team endpoints
func NewUserHandler(userService service.UserService, permissionService service.PermissionService, auth *middleware.AuthMiddleware) *UserHandler {
	return &UserHandler{userService: userService, permissionService: permissionService, auth: auth}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	team := router.Group("/api/team")
	team.Use(h.auth.Authenticate())
	{
		team.GET("", h.auth.RequirePermission("team.view"), h.ListUsers)
		team.GET("/:id", h.auth.RequirePermission("team.view"), h.GetUser)
		team.POST("", h.auth.RequirePermission("team.manage"), h.CreateUser)
		team.PUT("/:id/role", h.auth.RequirePermission("team.manage"), h.AssignRole)
		team.DELETE("/:id", h.auth.RequirePermission("team.manage"), h.DeleteUser)

		// Per-user overrides ride on the same group
		team.GET("/:id/permissions", h.auth.RequirePermission("team.view"), h.GetPermissions)
		team.PUT("/:id/permissions", h.auth.RequirePermission("team.manage"), h.ReplaceOverrides)
	}
}

// ListUsers handles GET /api/team and extracts pagination controls
// @Summary      List team members
// @Description  Retrieves a paginated list of users in the caller's company
// @Tags         team
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      500    {object}  response.Response
// @Router       /api/team [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	params := pagination.Parse(c)

	users, total, err := h.userService.ListUsers(c.Request.Context(), middleware.IdentityFrom(c), params.Page, params.Limit)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	data := params.Meta(total)
	data["users"] = users
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

// GetUser handles GET /api/team/:id
// @Summary      Get team member
// @Description  Fetch a single user's detail by their UUID, scoped to the caller's company
// @Tags         team
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/team/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// CreateUser handles POST /api/team
// @Summary      Create a team member
// @Description  Creates a new user in the caller's company, validating constraints and hashing password
// @Tags         team
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/team [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), middleware.IdentityFrom(c), req)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// AssignRole handles PUT /api/team/:id/role
// @Summary      Assign role
// @Description  Sets or clears a user's role assignment
// @Tags         team
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.AssignRoleRequest  true  "Role Assignment"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/team/{id}/role [put]
func (h *UserHandler) AssignRole(c *gin.Context) {
	var req service.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	user, err := h.userService.AssignRole(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), req, c.ClientIP())
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// DeleteUser handles DELETE /api/team/:id
// @Summary      Delete team member
// @Description  Soft deletes a user by ID
// @Tags         team
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/team/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id")); err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "User deleted successfully"))
}

// GetPermissions handles GET /api/team/:id/permissions
// @Summary      Get effective permissions
// @Description  Returns the user's resolved permission set alongside their raw overrides
// @Tags         team
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.EffectivePermissions}
// @Failure      404  {object}  response.Response
// @Router       /api/team/{id}/permissions [get]
func (h *UserHandler) GetPermissions(c *gin.Context) {
	perms, err := h.permissionService.GetEffectivePermissions(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// ReplaceOverrides handles PUT /api/team/:id/permissions
// @Summary      Replace permission overrides
// @Description  Atomically replaces the user's full override set and returns the new effective permissions
// @Tags         team
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "User ID"
// @Param        payload  body      service.ReplaceOverridesRequest  true  "Override Set"
// @Success      200      {object}  response.Response{data=service.EffectivePermissions}
// @Failure      400      {object}  response.Response
// @Router       /api/team/{id}/permissions [put]
func (h *UserHandler) ReplaceOverrides(c *gin.Context) {
	var req service.ReplaceOverridesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	perms, err := h.permissionService.ReplaceOverrides(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), req, c.ClientIP())
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}
