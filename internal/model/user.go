package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coarse role values carried on users predating the role table. The resolver
// maps these to a default role; "platform_operator" additionally bypasses all
// permission checks and is never assignable through the team endpoints.
const (
	CoarseRoleOwner            = "owner"
	CoarseRoleAdmin            = "admin"
	CoarseRoleManager          = "manager"
	CoarseRoleStaff            = "staff"
	CoarseRoleTechnician       = "technician"
	CoarseRolePlatformOperator = "platform_operator"
)

// User represents the central user entity for logic and database structure
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   *Company       `gorm:"foreignKey:CompanyID" json:"-"`
	RoleID    *uuid.UUID     `gorm:"type:uuid;index" json:"role_id"` // Nullable: legacy users only carry the coarse role
	Username  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"` // Omit password from JSON requests/responses
	Role      string         `gorm:"type:varchar(50);not null" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

// OwnerCompanyID implements tenant.Owned.
func (u *User) OwnerCompanyID() uuid.UUID { return u.CompanyID }
