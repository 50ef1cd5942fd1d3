package database

import (
	"fieldops/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.Company{},
		&model.Role{},
		&model.Permission{},
		&model.User{},
		&model.PermissionOverride{},
		&model.ImpersonationSession{},
		&model.AuditLog{},
		&model.Client{},
		&model.Invoice{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
