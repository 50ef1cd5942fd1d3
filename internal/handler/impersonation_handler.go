package handler

import (
	"net/http"

	"fieldops/internal/middleware"
	"fieldops/internal/service"
	"fieldops/internal/tenant"
	"fieldops/pkg/response"

	"github.com/gin-gonic/gin"
)

type StartImpersonationRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
}

type ImpersonationHandler struct {
	impersonationService service.ImpersonationService
	authService          service.AuthService
	auth                 *middleware.AuthMiddleware
}

func NewImpersonationHandler(impersonationService service.ImpersonationService, authService service.AuthService, auth *middleware.AuthMiddleware) *ImpersonationHandler {
	return &ImpersonationHandler{
		impersonationService: impersonationService,
		authService:          authService,
		auth:                 auth,
	}
}

// RegisterRoutes binds the operator-only impersonation endpoints.
func (h *ImpersonationHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/impersonation")
	group.Use(h.auth.Authenticate(), h.auth.RequireOperator())
	{
		group.POST("", h.Start)
		group.DELETE("/:id", h.End)
	}
}

// Start handles POST /api/impersonation
// @Summary      Start impersonation
// @Description  Opens a time-boxed impersonation session and returns a scoped token for it
// @Tags         impersonation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      StartImpersonationRequest  true  "Target and reason"
// @Success      201      {object}  response.Response{data=object}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/impersonation [post]
func (h *ImpersonationHandler) Start(c *gin.Context) {
	var req StartImpersonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	targetID, err := tenant.RequireIdentifier(req.TargetUserID, "target user id")
	if err != nil {
		response.RenderError(c, err)
		return
	}

	session, err := h.impersonationService.Start(c.Request.Context(), middleware.IdentityFrom(c), targetID, req.Reason, c.ClientIP())
	if err != nil {
		response.RenderError(c, err)
		return
	}

	token, err := h.authService.IssueImpersonationToken(session)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, map[string]interface{}{
		"session": session,
		"token":   token,
	}))
}

// End handles DELETE /api/impersonation/:id
// @Summary      End impersonation
// @Description  Ends the operator's own impersonation session
// @Tags         impersonation
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/impersonation/{id} [delete]
func (h *ImpersonationHandler) End(c *gin.Context) {
	sessionID, err := tenant.RequireIdentifier(c.Param("id"), "session id")
	if err != nil {
		response.RenderError(c, err)
		return
	}

	if err := h.impersonationService.End(c.Request.Context(), middleware.IdentityFrom(c), sessionID, c.ClientIP()); err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Impersonation ended"))
}
