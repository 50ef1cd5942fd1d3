package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/internal/repository"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Platform-wide session limits. Fixed deliberately: nothing per-tenant exists
// on a session, and tunable limits would let a misconfigured deployment
// silently extend elevation windows.
const (
	ImpersonationHardLimit = 60 * time.Minute
	ImpersonationIdleLimit = 15 * time.Minute
	MinImpersonationReason = 10
)

var activeImpersonations = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "fieldops",
	Subsystem: "impersonation",
	Name:      "active_sessions",
	Help:      "Impersonation sessions currently active.",
})

// ImpersonationService drives the session state machine:
// Requested → Active → Ended (manual, idle timeout, or hard timeout).
type ImpersonationService interface {
	Start(ctx context.Context, operator *authz.Identity, targetUserID uuid.UUID, reason, ip string) (*model.ImpersonationSession, error)
	// Validate checks a session against its hard and idle limits, ending it
	// when one is crossed, without counting the request as activity. Every
	// request carrying the session claim goes through Validate.
	Validate(ctx context.Context, sessionID uuid.UUID) (*model.ImpersonationSession, error)
	// Touch records activity on top of Validate's checks. Only a request that
	// passed authorization counts as activity, so denied requests cannot keep
	// an idle session alive.
	Touch(ctx context.Context, sessionID uuid.UUID) (*model.ImpersonationSession, error)
	End(ctx context.Context, operator *authz.Identity, sessionID uuid.UUID, ip string) error
	SweepExpired(ctx context.Context) int
}

type impersonationService struct {
	sessions repository.ImpersonationRepository
	users    repository.UserRepository
	audit    AuditService
	log      *logrus.Logger
	now      func() time.Time
}

func NewImpersonationService(sessions repository.ImpersonationRepository, users repository.UserRepository, audit AuditService, log *logrus.Logger) ImpersonationService {
	return &impersonationService{
		sessions: sessions,
		users:    users,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// Expired reports whether the session has reached its hard cap or idle gap
// at the given instant. Both limits are inclusive: a request arriving exactly
// at the cap is already out.
func Expired(s *model.ImpersonationSession, now time.Time) bool {
	return !now.Before(s.ExpiresAt) || now.Sub(s.LastActivityAt) >= ImpersonationIdleLimit
}

// expiryReason names the limit an expired session actually crossed, for the
// end reason and audit action.
func expiryReason(s *model.ImpersonationSession, now time.Time) string {
	if !now.Before(s.ExpiresAt) {
		return model.ImpersonationEndHardTimeout
	}
	return model.ImpersonationEndIdleTimeout
}

func (s *impersonationService) Start(ctx context.Context, operator *authz.Identity, targetUserID uuid.UUID, reason, ip string) (*model.ImpersonationSession, error) {
	if operator == nil {
		return nil, apperror.AuthenticationRequired("authentication required")
	}
	if operator.CoarseRole != model.CoarseRolePlatformOperator {
		return nil, apperror.New(apperror.KindPermissionDenied, "platform operator role required")
	}
	if operator.Impersonated() {
		return nil, apperror.Conflict("cannot start impersonation while already impersonating")
	}
	if len(strings.TrimSpace(reason)) < MinImpersonationReason {
		return nil, apperror.Newf(apperror.KindInvalidArgument, "reason must be at least %d characters", MinImpersonationReason)
	}

	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if target.Role == model.CoarseRolePlatformOperator {
		return nil, apperror.Conflict("cannot impersonate a platform operator")
	}

	now := s.now()
	existing, err := s.sessions.FindActiveByOperator(ctx, operator.UserID)
	switch {
	case err == nil:
		if !Expired(existing, now) {
			return nil, apperror.Conflict("an impersonation session is already active")
		}
		// Stale session nobody touched since it expired; close it out under
		// the limit it actually crossed.
		if err := s.endSession(ctx, existing, expiryReason(existing, now), now); err != nil {
			return nil, err
		}
	case !apperror.IsKind(err, apperror.KindNotFound):
		// Only a definite "no active session" may proceed. Anything else
		// could be hiding a live session, so the start fails closed.
		return nil, fmt.Errorf("check active impersonation for %s: %w", operator.UserID, err)
	}

	session := &model.ImpersonationSession{
		OperatorID:      operator.UserID,
		TargetUserID:    target.ID,
		TargetCompanyID: target.CompanyID,
		Reason:          strings.TrimSpace(reason),
		StartedAt:       now,
		ExpiresAt:       now.Add(ImpersonationHardLimit),
		LastActivityAt:  now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create impersonation session: %w", err)
	}

	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:         &operator.UserID,
		Action:          model.ActionImpersonationStart,
		TargetCompanyID: &target.CompanyID,
		TargetUserID:    &target.ID,
		Reason:          session.Reason,
		Details:         map[string]interface{}{"session_id": session.ID.String()},
		IPAddress:       ip,
	}); err != nil {
		return nil, err
	}

	activeImpersonations.Inc()
	s.log.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"operator_id": operator.UserID,
		"target_user": target.ID,
	}).Info("impersonation started")
	return session, nil
}

func (s *impersonationService) Validate(ctx context.Context, sessionID uuid.UUID) (*model.ImpersonationSession, error) {
	return s.liveSession(ctx, sessionID)
}

func (s *impersonationService) Touch(ctx context.Context, sessionID uuid.UUID) (*model.ImpersonationSession, error) {
	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.LastActivityAt = s.now()
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("record session activity: %w", err)
	}
	return session, nil
}

// liveSession loads the session and enforces both limits, ending the session
// when one is crossed. Limits are inclusive, matching Expired.
func (s *impersonationService) liveSession(ctx context.Context, sessionID uuid.UUID) (*model.ImpersonationSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, apperror.AuthenticationRequired("impersonation session ended")
	}

	now := s.now()
	if !now.Before(session.ExpiresAt) {
		if err := s.endSession(ctx, session, model.ImpersonationEndHardTimeout, now); err != nil {
			return nil, err
		}
		return nil, apperror.AuthenticationRequired("impersonation session expired")
	}
	if now.Sub(session.LastActivityAt) >= ImpersonationIdleLimit {
		if err := s.endSession(ctx, session, model.ImpersonationEndIdleTimeout, now); err != nil {
			return nil, err
		}
		return nil, apperror.AuthenticationRequired("impersonation session timed out due to inactivity")
	}
	return session, nil
}

func (s *impersonationService) End(ctx context.Context, operator *authz.Identity, sessionID uuid.UUID, ip string) error {
	if operator == nil {
		return apperror.AuthenticationRequired("authentication required")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.OperatorID != operator.UserID {
		// Same conflation as the tenant boundary: another operator's session
		// is indistinguishable from a nonexistent one.
		return apperror.NotFound("impersonation session")
	}
	if !session.Active() {
		return apperror.Conflict("impersonation session already ended")
	}

	now := s.now()
	if err := s.endSession(ctx, session, model.ImpersonationEndManual, now); err != nil {
		return err
	}

	return s.audit.Record(ctx, AuditEvent{
		ActorID:         &session.OperatorID,
		Action:          model.ActionImpersonationEnd,
		TargetCompanyID: &session.TargetCompanyID,
		TargetUserID:    &session.TargetUserID,
		Details:         map[string]interface{}{"session_id": session.ID.String()},
		IPAddress:       ip,
	})
}

// SweepExpired proactively ends sessions past their hard cap. Expiry is
// enforced on every request regardless; the sweep just keeps the table tidy.
func (s *impersonationService) SweepExpired(ctx context.Context) int {
	now := s.now()
	stale, err := s.sessions.ListActiveExpiredBefore(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("impersonation sweep failed")
		return 0
	}

	ended := 0
	for i := range stale {
		session := &stale[i]
		if err := s.endSession(ctx, session, model.ImpersonationEndHardTimeout, now); err != nil {
			s.log.WithError(err).WithField("session_id", session.ID).Error("failed to end expired session")
			continue
		}
		ended++
	}
	if ended > 0 {
		s.log.WithField("count", ended).Info("ended expired impersonation sessions")
	}
	return ended
}

func (s *impersonationService) endSession(ctx context.Context, session *model.ImpersonationSession, reason string, now time.Time) error {
	session.EndedAt = &now
	session.EndReason = reason
	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("end impersonation session: %w", err)
	}
	activeImpersonations.Dec()

	action := ""
	switch reason {
	case model.ImpersonationEndIdleTimeout:
		action = model.ActionImpersonationIdleTimeout
	case model.ImpersonationEndHardTimeout:
		action = model.ActionImpersonationHardTimeout
	}
	if action != "" {
		if err := s.audit.Record(ctx, AuditEvent{
			ActorID:         &session.OperatorID,
			Action:          action,
			TargetCompanyID: &session.TargetCompanyID,
			TargetUserID:    &session.TargetUserID,
			Details:         map[string]interface{}{"session_id": session.ID.String()},
		}); err != nil {
			return err
		}
	}
	return nil
}
