package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionImpersonationStart       = "impersonation.start"
	ActionImpersonationEnd         = "impersonation.end"
	ActionImpersonationIdleTimeout = "impersonation.idle_timeout"
	ActionImpersonationHardTimeout = "impersonation.hard_timeout"
	ActionOverridesReplaced        = "permissions.overrides_replaced"
	ActionRoleAssigned             = "team.role_assigned"
	ActionRolePermissionsUpdated   = "roles.permissions_updated"
)

// AuditLog tracks Who, What, and When for privileged actions. Rows are
// insert-only; created_at is always server-assigned.
type AuditLog struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID         *uuid.UUID `gorm:"type:uuid;index" json:"actor_id"` // Nullable gracefully if automated
	Actor           *User      `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Action          string     `gorm:"type:varchar(50);not null;index" json:"action"`
	TargetCompanyID *uuid.UUID `gorm:"type:uuid;index" json:"target_company_id"`
	TargetUserID    *uuid.UUID `gorm:"type:uuid;index" json:"target_user_id"`
	Reason          string     `gorm:"type:text" json:"reason,omitempty"`
	Details         string     `gorm:"type:jsonb" json:"details,omitempty"` // Serialized JSON payload of the action
	IPAddress       string     `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}
