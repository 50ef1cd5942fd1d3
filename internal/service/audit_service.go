package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldops/internal/model"
	"fieldops/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditEvent is what callers may supply. It deliberately has no timestamp
// field: created_at is always server-assigned.
type AuditEvent struct {
	ActorID         *uuid.UUID
	Action          string
	TargetCompanyID *uuid.UUID
	TargetUserID    *uuid.UUID
	Reason          string
	Details         map[string]interface{}
	IPAddress       string
}

type AuditLogResponse struct {
	ID              string `json:"id"`
	ActorID         string `json:"actor_id"`
	ActorUsername   string `json:"actor_username"`
	Action          string `json:"action"`
	TargetCompanyID string `json:"target_company_id,omitempty"`
	TargetUserID    string `json:"target_user_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Details         string `json:"details,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// AuditNotifier pushes freshly appended entries to live consumers (the ws
// feed). Best-effort; failures never block the append.
type AuditNotifier interface {
	NotifyAudit(entry model.AuditLog)
}

type AuditService interface {
	Record(ctx context.Context, event AuditEvent) error
	GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo     repository.AuditRepository
	notifier AuditNotifier
	log      *logrus.Logger
	now      func() time.Time
}

// NewAuditService creates a new AuditService instance. notifier may be nil.
func NewAuditService(repo repository.AuditRepository, notifier AuditNotifier, log *logrus.Logger) AuditService {
	return &auditService{repo: repo, notifier: notifier, log: log, now: time.Now}
}

func (s *auditService) Record(ctx context.Context, event AuditEvent) error {
	var details string
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(raw)
	}

	entry := model.AuditLog{
		ActorID:         event.ActorID,
		Action:          event.Action,
		TargetCompanyID: event.TargetCompanyID,
		TargetUserID:    event.TargetUserID,
		Reason:          event.Reason,
		Details:         details,
		IPAddress:       event.IPAddress,
		CreatedAt:       s.now(),
	}

	if err := s.repo.Append(ctx, &entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyAudit(entry)
	}
	return nil
}

// GetAuditLogs retrieves most-recent-first, page-bounded records with actors
// pre-loaded.
func (s *auditService) GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		actorID := ""
		actorUsername := "System"
		if l.ActorID != nil {
			actorID = l.ActorID.String()
		}
		if l.Actor != nil {
			actorUsername = l.Actor.Username
		}

		resp := AuditLogResponse{
			ID:            l.ID.String(),
			ActorID:       actorID,
			ActorUsername: actorUsername,
			Action:        l.Action,
			Reason:        l.Reason,
			Details:       l.Details,
			IPAddress:     l.IPAddress,
			CreatedAt:     l.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if l.TargetCompanyID != nil {
			resp.TargetCompanyID = l.TargetCompanyID.String()
		}
		if l.TargetUserID != nil {
			resp.TargetUserID = l.TargetUserID.String()
		}
		res = append(res, resp)
	}

	return res, total, nil
}
