package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enum constants
const (
	InvoiceDraft = "DRAFT"
	InvoiceSent  = "SENT"
	InvoicePaid  = "PAID"
	InvoiceVoid  = "VOID"
)

// Invoice represents a financial document issued to a client. Tenant-owned;
// line math lives outside the authorization core.
type Invoice struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_company_no;index" json:"company_id"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	InvoiceNo   string          `gorm:"type:varchar(30);not null;uniqueIndex:idx_invoice_company_no" json:"invoice_no"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_amount"` // subtotal + tax_amount
	Status      string          `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	Note        string          `gorm:"type:text" json:"note"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OwnerCompanyID implements tenant.Owned.
func (i *Invoice) OwnerCompanyID() uuid.UUID { return i.CompanyID }
