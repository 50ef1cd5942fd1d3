package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type impersonationFixture struct {
	svc      *impersonationService
	sessions *fakeSessionRepo
	users    *fakeUserRepo
	audit    *recordingAudit
	operator *authz.Identity
	target   *model.User
	clock    time.Time
}

func newImpersonationFixture(t *testing.T) *impersonationFixture {
	t.Helper()

	operatorUser := &model.User{ID: uuid.New(), Role: model.CoarseRolePlatformOperator, Username: "operator"}
	target := &model.User{ID: uuid.New(), CompanyID: uuid.New(), Role: model.CoarseRoleTechnician, Username: "tech"}

	f := &impersonationFixture{
		sessions: newFakeSessionRepo(),
		users:    newFakeUserRepo(operatorUser, target),
		audit:    &recordingAudit{},
		operator: &authz.Identity{UserID: operatorUser.ID, CoarseRole: model.CoarseRolePlatformOperator},
		target:   target,
		clock:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	svc := NewImpersonationService(f.sessions, f.users, f.audit, testLogger()).(*impersonationService)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func (f *impersonationFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

const validReason = "customer escalation #4821"

func TestStartRejectsShortReason(t *testing.T) {
	f := newImpersonationFixture(t)

	// Nine characters, one below the minimum.
	_, err := f.svc.Start(context.Background(), f.operator, f.target.ID, "too short", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))
	assert.Empty(t, f.audit.events)
	assert.Empty(t, f.sessions.sessions)
}

func TestStartCreatesActiveSessionWithAudit(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	assert.True(t, session.Active())
	assert.Equal(t, f.clock, session.StartedAt)
	assert.Equal(t, f.clock.Add(ImpersonationHardLimit), session.ExpiresAt)
	assert.Equal(t, f.target.CompanyID, session.TargetCompanyID)

	starts := f.audit.byAction(model.ActionImpersonationStart)
	require.Len(t, starts, 1)
	assert.Equal(t, f.operator.UserID, *starts[0].ActorID)
	assert.Equal(t, f.target.ID, *starts[0].TargetUserID)
	assert.Equal(t, validReason, starts[0].Reason)
}

func TestStartRejectsNonOperator(t *testing.T) {
	f := newImpersonationFixture(t)

	admin := &authz.Identity{UserID: uuid.New(), CompanyID: uuid.New(), CoarseRole: model.CoarseRoleAdmin}
	_, err := f.svc.Start(context.Background(), admin, f.target.ID, validReason, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindPermissionDenied))
}

func TestStartRejectsOperatorTarget(t *testing.T) {
	f := newImpersonationFixture(t)

	otherOperator := &model.User{ID: uuid.New(), Role: model.CoarseRolePlatformOperator}
	require.NoError(t, f.users.Create(context.Background(), otherOperator))

	_, err := f.svc.Start(context.Background(), f.operator, otherOperator.ID, validReason, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestStartRejectsDoubleElevation(t *testing.T) {
	f := newImpersonationFixture(t)

	_, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// While impersonating, the re-attributed identity cannot elevate again.
	elevated := &authz.Identity{
		UserID:        f.target.ID,
		CoarseRole:    model.CoarseRolePlatformOperator,
		Impersonation: &authz.ImpersonationClaim{SessionID: uuid.New(), OperatorID: f.operator.UserID},
	}
	_, err = f.svc.Start(context.Background(), elevated, f.target.ID, validReason, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

// flakySessionRepo fails the active-session lookup on demand.
type flakySessionRepo struct {
	*fakeSessionRepo
	findErr error
}

func (f *flakySessionRepo) FindActiveByOperator(ctx context.Context, operatorID uuid.UUID) (*model.ImpersonationSession, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.fakeSessionRepo.FindActiveByOperator(ctx, operatorID)
}

func TestStartFailsClosedWhenActiveLookupErrors(t *testing.T) {
	f := newImpersonationFixture(t)
	repo := &flakySessionRepo{fakeSessionRepo: f.sessions}
	svc := NewImpersonationService(repo, f.users, f.audit, testLogger()).(*impersonationService)
	svc.now = func() time.Time { return f.clock }

	first, err := svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	// A transient store failure must not look like "no active session", or
	// the operator ends up holding two concurrent elevations.
	repo.findErr = errors.New("connection reset by peer")
	_, err = svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.Error(t, err)

	active := 0
	for _, s := range f.sessions.sessions {
		if s.EndedAt == nil {
			active++
		}
	}
	assert.Equal(t, 1, active)

	stored, getErr := f.sessions.GetByID(context.Background(), first.ID)
	require.NoError(t, getErr)
	assert.True(t, stored.Active())
	assert.Len(t, f.audit.byAction(model.ActionImpersonationStart), 1)
}

func TestStartClosesIdleStaleSessionAsIdleTimeout(t *testing.T) {
	f := newImpersonationFixture(t)

	first, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	// The idle gap has elapsed but the hard cap has not, so the stale session
	// must be closed as an idle timeout, not a hard one.
	f.advance(ImpersonationIdleLimit)
	second, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, second.Active())

	stored, getErr := f.sessions.GetByID(context.Background(), first.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ImpersonationEndIdleTimeout, stored.EndReason)
	assert.Len(t, f.audit.byAction(model.ActionImpersonationIdleTimeout), 1)
	assert.Empty(t, f.audit.byAction(model.ActionImpersonationHardTimeout))
}

func TestStartClosesHardExpiredStaleSessionAsHardTimeout(t *testing.T) {
	f := newImpersonationFixture(t)

	first, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	f.advance(ImpersonationHardLimit)
	_, err = f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	stored, getErr := f.sessions.GetByID(context.Background(), first.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ImpersonationEndHardTimeout, stored.EndReason)
}

func TestTouchWithinLimitsRecordsActivity(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	touched, err := f.svc.Touch(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock, touched.LastActivityAt)
	assert.True(t, touched.Active())
}

func TestTouchEndsSessionAtHardCap(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	// Keep the session busy right up to the cap; activity never extends it.
	for i := 0; i < 5; i++ {
		f.advance(10 * time.Minute)
		_, err = f.svc.Touch(context.Background(), session.ID)
		require.NoError(t, err)
	}

	// Exactly at the cap is already out.
	f.advance(10 * time.Minute)
	_, err = f.svc.Touch(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthenticationRequired))

	stored, getErr := f.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Active())
	assert.Equal(t, model.ImpersonationEndHardTimeout, stored.EndReason)
	assert.Len(t, f.audit.byAction(model.ActionImpersonationHardTimeout), 1)
}

func TestTouchEndsSessionAfterIdleGap(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	// A gap of exactly the idle limit already ends the session.
	f.advance(ImpersonationIdleLimit)
	_, err = f.svc.Touch(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthenticationRequired))

	stored, getErr := f.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ImpersonationEndIdleTimeout, stored.EndReason)
	assert.Len(t, f.audit.byAction(model.ActionImpersonationIdleTimeout), 1)
}

func TestTouchJustInsideLimitsSucceeds(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	f.advance(ImpersonationIdleLimit - time.Second)
	_, err = f.svc.Touch(context.Background(), session.ID)
	require.NoError(t, err)
}

func TestValidateDoesNotRecordActivity(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	checked, err := f.svc.Validate(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StartedAt, checked.LastActivityAt)

	stored, getErr := f.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, session.StartedAt, stored.LastActivityAt)

	// Validation alone never refreshed the idle window, so the gap since the
	// last real activity keeps growing.
	f.advance(5 * time.Minute)
	_, err = f.svc.Validate(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthenticationRequired))
	assert.Len(t, f.audit.byAction(model.ActionImpersonationIdleTimeout), 1)
}

func TestTouchEndedSessionFails(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, f.svc.End(context.Background(), f.operator, session.ID, "10.0.0.1"))

	_, err = f.svc.Touch(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthenticationRequired))
}

func TestEndManual(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, f.svc.End(context.Background(), f.operator, session.ID, "10.0.0.1"))

	stored, getErr := f.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ImpersonationEndManual, stored.EndReason)
	assert.Len(t, f.audit.byAction(model.ActionImpersonationEnd), 1)

	// Ending again conflicts with the already-ended state.
	err = f.svc.End(context.Background(), f.operator, session.ID, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestEndForeignSessionLooksAbsent(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	other := &authz.Identity{UserID: uuid.New(), CoarseRole: model.CoarseRolePlatformOperator}
	err = f.svc.End(context.Background(), other, session.ID, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestSweepExpiredEndsStaleSessions(t *testing.T) {
	f := newImpersonationFixture(t)

	session, err := f.svc.Start(context.Background(), f.operator, f.target.ID, validReason, "10.0.0.1")
	require.NoError(t, err)

	f.advance(ImpersonationHardLimit + time.Minute)
	assert.Equal(t, 1, f.svc.SweepExpired(context.Background()))

	stored, getErr := f.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Active())
	assert.Equal(t, model.ImpersonationEndHardTimeout, stored.EndReason)

	// Nothing left to sweep.
	assert.Zero(t, f.svc.SweepExpired(context.Background()))
}
