package handler

import (
	"net/http"

	"fieldops/internal/middleware"
	"fieldops/internal/service"
	"fieldops/pkg/pagination"
	"fieldops/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	auth           *middleware.AuthMiddleware
}

func NewInvoiceHandler(invoiceService service.InvoiceService, auth *middleware.AuthMiddleware) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, auth: auth}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	invoices.Use(h.auth.Authenticate())
	{
		invoices.GET("", h.auth.RequirePermission("invoices.view"), h.ListInvoices)
		invoices.GET("/:id", h.auth.RequirePermission("invoices.view"), h.GetInvoice)
		invoices.POST("", h.auth.RequirePermission("invoices.create"), h.CreateInvoice)
		invoices.DELETE("/:id", h.auth.RequirePermission("invoices.delete"), h.DeleteInvoice)
	}
}

// ListInvoices handles GET /api/invoices
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	params := pagination.Parse(c)

	invoices, total, err := h.invoiceService.List(c.Request.Context(), middleware.IdentityFrom(c), params.Page, params.Limit)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	data := params.Meta(total)
	data["invoices"] = invoices
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

// GetInvoice handles GET /api/invoices/:id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.Get(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		response.RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// CreateInvoice handles POST /api/invoices
// @Summary      Create invoice
// @Description  Creates a draft invoice for a client in the caller's company
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateInvoiceRequest  true  "Invoice Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.Create(c.Request.Context(), middleware.IdentityFrom(c), req)
	if err != nil {
		response.RenderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// DeleteInvoice handles DELETE /api/invoices/:id
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	if err := h.invoiceService.Delete(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id")); err != nil {
		response.RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Invoice deleted successfully"))
}
