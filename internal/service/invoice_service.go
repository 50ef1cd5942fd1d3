package service

import (
	"context"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/internal/repository"
	"fieldops/internal/tenant"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	ClientID  string          `json:"client_id" binding:"required"`
	InvoiceNo string          `json:"invoice_no" binding:"required"`
	Subtotal  decimal.Decimal `json:"subtotal" binding:"required"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Note      string          `json:"note"`
}

type InvoiceResponse struct {
	ID          uuid.UUID       `json:"id"`
	ClientID    uuid.UUID       `json:"client_id"`
	ClientName  string          `json:"client_name,omitempty"`
	InvoiceNo   string          `json:"invoice_no"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Note        string          `json:"note"`
	CreatedAt   string          `json:"created_at"`
}

type InvoiceService interface {
	Create(ctx context.Context, ident *authz.Identity, req CreateInvoiceRequest) (*InvoiceResponse, error)
	Get(ctx context.Context, ident *authz.Identity, id string) (*InvoiceResponse, error)
	List(ctx context.Context, ident *authz.Identity, page, limit int) ([]InvoiceResponse, int64, error)
	Delete(ctx context.Context, ident *authz.Identity, id string) error
}

type invoiceService struct {
	invoices repository.InvoiceRepository
	clients  repository.ClientRepository
}

func NewInvoiceService(invoices repository.InvoiceRepository, clients repository.ClientRepository) InvoiceService {
	return &invoiceService{invoices: invoices, clients: clients}
}

func toInvoiceResponse(inv *model.Invoice) *InvoiceResponse {
	resp := &InvoiceResponse{
		ID:          inv.ID,
		ClientID:    inv.ClientID,
		InvoiceNo:   inv.InvoiceNo,
		Subtotal:    inv.Subtotal,
		TaxAmount:   inv.TaxAmount,
		TotalAmount: inv.TotalAmount,
		Status:      inv.Status,
		Note:        inv.Note,
		CreatedAt:   inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if inv.Client != nil {
		resp.ClientName = inv.Client.Name
	}
	return resp
}

func (s *invoiceService) Create(ctx context.Context, ident *authz.Identity, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, err
	}
	clientID, err := tenant.RequireIdentifier(req.ClientID, "client id")
	if err != nil {
		return nil, err
	}
	if req.Subtotal.IsNegative() || req.TaxAmount.IsNegative() {
		return nil, apperror.InvalidArgument("amounts must not be negative")
	}

	// The client lookup is tenant-scoped: a client in another company is the
	// same as no client at all.
	if _, err := s.clients.GetByID(ctx, ident.CompanyID, clientID); err != nil {
		return nil, err
	}

	invoice := &model.Invoice{
		CompanyID:   ident.CompanyID,
		ClientID:    clientID,
		InvoiceNo:   req.InvoiceNo,
		Subtotal:    req.Subtotal,
		TaxAmount:   req.TaxAmount,
		TotalAmount: req.Subtotal.Add(req.TaxAmount),
		Status:      model.InvoiceDraft,
		Note:        req.Note,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, err
	}
	return toInvoiceResponse(invoice), nil
}

func (s *invoiceService) Get(ctx context.Context, ident *authz.Identity, id string) (*InvoiceResponse, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, err
	}
	invoiceID, err := tenant.RequireIdentifier(id, "invoice id")
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoices.GetByID(ctx, ident.CompanyID, invoiceID)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(invoice), nil
}

func (s *invoiceService) List(ctx context.Context, ident *authz.Identity, page, limit int) ([]InvoiceResponse, int64, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, 0, err
	}

	invoices, total, err := s.invoices.ListByCompany(ctx, ident.CompanyID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		res = append(res, *toInvoiceResponse(&invoices[i]))
	}
	return res, total, nil
}

func (s *invoiceService) Delete(ctx context.Context, ident *authz.Identity, id string) error {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return err
	}
	invoiceID, err := tenant.RequireIdentifier(id, "invoice id")
	if err != nil {
		return err
	}
	return s.invoices.Delete(ctx, ident.CompanyID, invoiceID)
}
