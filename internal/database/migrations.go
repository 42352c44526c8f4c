package database

import (
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.LoginMethod{},
		&models.RecoveryToken{},
		&models.WebauthnCredential{},
		&models.WebauthnGeneratedOptions{},
	)
}

// SeedData ensures the default tenant exists with every recipe enabled.
func SeedData(db *gorm.DB) error {
	tenant := models.Tenant{
		ID:                   models.DefaultTenantID,
		Name:                 "Default tenant",
		EmailPasswordEnabled: true,
		ThirdPartyEnabled:    true,
		PasswordlessEnabled:  true,
		WebauthnEnabled:      true,
	}

	return db.Where(models.Tenant{ID: tenant.ID}).Attrs(tenant).FirstOrCreate(&models.Tenant{}).Error
}
