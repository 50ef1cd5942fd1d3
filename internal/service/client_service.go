package service

import (
	"context"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/internal/repository"
	"fieldops/internal/tenant"

	"github.com/google/uuid"
)

type CreateClientRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type UpdateClientRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type ClientResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	Address string    `json:"address"`
}

// ClientService is ordinary CRUD glue; its only job before touching data is
// to go through the tenant boundary.
type ClientService interface {
	Create(ctx context.Context, ident *authz.Identity, req CreateClientRequest) (*ClientResponse, error)
	Get(ctx context.Context, ident *authz.Identity, id string) (*ClientResponse, error)
	List(ctx context.Context, ident *authz.Identity, page, limit int) ([]ClientResponse, int64, error)
	Update(ctx context.Context, ident *authz.Identity, id string, req UpdateClientRequest) (*ClientResponse, error)
	Delete(ctx context.Context, ident *authz.Identity, id string) error
}

type clientService struct {
	repo repository.ClientRepository
}

func NewClientService(repo repository.ClientRepository) ClientService {
	return &clientService{repo: repo}
}

func toClientResponse(c *model.Client) *ClientResponse {
	return &ClientResponse{
		ID:      c.ID,
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Address: c.Address,
	}
}

func (s *clientService) Create(ctx context.Context, ident *authz.Identity, req CreateClientRequest) (*ClientResponse, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, err
	}

	client := &model.Client{
		CompanyID: ident.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, err
	}
	return toClientResponse(client), nil
}

func (s *clientService) Get(ctx context.Context, ident *authz.Identity, id string) (*ClientResponse, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, err
	}
	clientID, err := tenant.RequireIdentifier(id, "client id")
	if err != nil {
		return nil, err
	}

	client, err := s.repo.GetByID(ctx, ident.CompanyID, clientID)
	if err != nil {
		return nil, err
	}
	return toClientResponse(client), nil
}

func (s *clientService) List(ctx context.Context, ident *authz.Identity, page, limit int) ([]ClientResponse, int64, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, 0, err
	}

	clients, total, err := s.repo.ListByCompany(ctx, ident.CompanyID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ClientResponse, 0, len(clients))
	for i := range clients {
		res = append(res, *toClientResponse(&clients[i]))
	}
	return res, total, nil
}

func (s *clientService) Update(ctx context.Context, ident *authz.Identity, id string, req UpdateClientRequest) (*ClientResponse, error) {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return nil, err
	}
	clientID, err := tenant.RequireIdentifier(id, "client id")
	if err != nil {
		return nil, err
	}

	client, err := s.repo.GetByID(ctx, ident.CompanyID, clientID)
	if err != nil {
		return nil, err
	}

	client.Name = req.Name
	client.Email = req.Email
	client.Phone = req.Phone
	client.Address = req.Address

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, err
	}
	return toClientResponse(client), nil
}

func (s *clientService) Delete(ctx context.Context, ident *authz.Identity, id string) error {
	if err := tenant.RequireContext(ident.CompanyID); err != nil {
		return err
	}
	clientID, err := tenant.RequireIdentifier(id, "client id")
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, ident.CompanyID, clientID)
}
