package model

import (
	"time"

	"github.com/google/uuid"
)

// End reasons recorded when a session leaves the Active state.
const (
	ImpersonationEndManual      = "manual"
	ImpersonationEndIdleTimeout = "idle_timeout"
	ImpersonationEndHardTimeout = "hard_timeout"
)

// ImpersonationSession is a time-boxed elevation letting a platform operator
// act as a specific tenant user. It is Active between started_at and the
// earlier of expires_at, the idle cutoff, or an explicit end.
type ImpersonationSession struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OperatorID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"operator_id"`
	TargetUserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"target_user_id"`
	TargetCompanyID uuid.UUID  `gorm:"type:uuid;not null;index" json:"target_company_id"`
	Reason          string     `gorm:"type:text;not null" json:"reason"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	ExpiresAt       time.Time  `gorm:"not null" json:"expires_at"` // Hard cap, never extended
	LastActivityAt  time.Time  `gorm:"not null" json:"last_activity_at"`
	EndedAt         *time.Time `json:"ended_at"`
	EndReason       string     `gorm:"type:varchar(20)" json:"end_reason,omitempty"`
}

// Active reports whether the session has not been ended. Expiry is evaluated
// separately against the request clock.
func (s *ImpersonationSession) Active() bool {
	return s.EndedAt == nil
}
