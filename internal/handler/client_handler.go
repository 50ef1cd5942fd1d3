package handler

import (
	"net/http"

	"fieldops/internal/middleware"
	"fieldops/internal/service"
	"fieldops/pkg/pagination"
	"fieldops/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	clientService service.ClientService
	auth          *middleware.AuthMiddleware
}

func NewClientHandler(clientService service.ClientService, auth *middleware.AuthMiddleware) *ClientHandler {
	return &ClientHandler{clientService: clientService, auth: auth}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/api/clients")
	clients.Use(h.auth.Authenticate())
	{
		clients.GET("", h.auth.RequirePermission("clients.view"), h.ListClients)
		clients.GET("/:id", h.auth.RequirePermission("clients.view"), h.GetClient)
		clients.POST("", h.auth.RequirePermission("clients.manage"), h.CreateClient)
		clients.PUT("/:id", h.auth.RequirePermission("clients.manage"), h.UpdateClient)
		clients.DELETE("/:id", h.auth.RequirePermission("clients.manage"), h.DeleteClient)
	}
}

// ListClients handles GET /api/clients
func (h *ClientHandler) ListClients(c *gin.Context) {
	params := pagination.Parse(c)

	clients, total, err := h.clientService.List(c.Request.Context(), middleware.IdentityFrom(c), params.Page, params.Limit)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	data := params.Meta(total)
	data["clients"] = clients
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

// GetClient handles GET /api/clients/:id
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clientService.Get(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		response.RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// CreateClient handles POST /api/clients
// @Summary      Create client
// @Description  Creates a client record in the caller's company
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateClientRequest  true  "Client Payload"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), middleware.IdentityFrom(c), req)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// UpdateClient handles PUT /api/clients/:id
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req service.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clientService.Update(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), req)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// DeleteClient handles DELETE /api/clients/:id
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clientService.Delete(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id")); err != nil {
		response.RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Client deleted successfully"))
}
