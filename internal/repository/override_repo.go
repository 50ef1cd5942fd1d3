package repository

import (
	"context"

	"fieldops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OverrideRepository persists per-user permission exceptions. The table has a
// unique index on (user_id, permission_id); replacement is the only write
// shape so grant/revoke can never coexist for one pair.
type OverrideRepository interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.PermissionOverride, error)
	ReplaceForUser(ctx context.Context, userID uuid.UUID, overrides []model.PermissionOverride) error
}

type overrideRepository struct {
	db *gorm.DB
}

func NewOverrideRepository(db *gorm.DB) OverrideRepository {
	return &overrideRepository{db: db}
}

func (r *overrideRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.PermissionOverride, error) {
	var overrides []model.PermissionOverride
	if err := GetDB(ctx, r.db).Preload("Permission").Where("user_id = ?", userID).Find(&overrides).Error; err != nil {
		return nil, err
	}
	return overrides, nil
}

func (r *overrideRepository) ReplaceForUser(ctx context.Context, userID uuid.UUID, overrides []model.PermissionOverride) error {
	db := GetDB(ctx, r.db)
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.PermissionOverride{}).Error; err != nil {
			return err
		}
		if len(overrides) == 0 {
			return nil
		}
		for i := range overrides {
			overrides[i].UserID = userID
		}
		return tx.Create(&overrides).Error
	})
}
