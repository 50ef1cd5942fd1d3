package model

import (
	"time"

	"github.com/google/uuid"
)

// Override modes. The unique index on (user_id, permission_id) guarantees a
// grant and a revoke can never coexist for the same pair.
const (
	OverrideModeGrant  = "grant"
	OverrideModeRevoke = "revoke"
)

// PermissionOverride is a per-user exception layered atop role-derived
// permissions: grant adds a key the role does not confer, revoke defeats one
// it does.
type PermissionOverride struct {
	ID           uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID       uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_override_user_permission" json:"user_id"`
	PermissionID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_override_user_permission" json:"permission_id"`
	Permission   *Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
	Mode         string      `gorm:"type:varchar(10);not null" json:"mode"` // grant or revoke
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
