package repository

import (
	"context"
	"time"

	"fieldops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ImpersonationRepository interface {
	Create(ctx context.Context, session *model.ImpersonationSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ImpersonationSession, error)
	FindActiveByOperator(ctx context.Context, operatorID uuid.UUID) (*model.ImpersonationSession, error)
	Update(ctx context.Context, session *model.ImpersonationSession) error
	ListActiveExpiredBefore(ctx context.Context, cutoff time.Time) ([]model.ImpersonationSession, error)
}

type impersonationRepository struct {
	db *gorm.DB
}

func NewImpersonationRepository(db *gorm.DB) ImpersonationRepository {
	return &impersonationRepository{db: db}
}

func (r *impersonationRepository) Create(ctx context.Context, session *model.ImpersonationSession) error {
	return GetDB(ctx, r.db).Create(session).Error
}

func (r *impersonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ImpersonationSession, error) {
	var session model.ImpersonationSession
	if err := GetDB(ctx, r.db).First(&session, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "impersonation session")
	}
	return &session, nil
}

func (r *impersonationRepository) FindActiveByOperator(ctx context.Context, operatorID uuid.UUID) (*model.ImpersonationSession, error) {
	var session model.ImpersonationSession
	err := GetDB(ctx, r.db).
		Where("operator_id = ? AND ended_at IS NULL", operatorID).
		Order("started_at desc").
		First(&session).Error
	if err != nil {
		return nil, notFound(err, "impersonation session")
	}
	return &session, nil
}

func (r *impersonationRepository) Update(ctx context.Context, session *model.ImpersonationSession) error {
	return GetDB(ctx, r.db).Save(session).Error
}

func (r *impersonationRepository) ListActiveExpiredBefore(ctx context.Context, cutoff time.Time) ([]model.ImpersonationSession, error) {
	var sessions []model.ImpersonationSession
	err := GetDB(ctx, r.db).
		Where("ended_at IS NULL AND expires_at <= ?", cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
