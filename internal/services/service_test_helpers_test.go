package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/database/testutil"
	"github.com/keyloom/keyloom/internal/models"
)

func testContext() context.Context {
	return context.Background()
}

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	// A second tenant for cross-tenant scoping tests.
	require.NoError(t, db.Create(&models.Tenant{
		ID:              "acme",
		Name:            "Acme Corp",
		WebauthnEnabled: true,
	}).Error)

	return db
}

func mustSignUp(t *testing.T, db *gorm.DB, tenantID, email string) *models.LoginMethod {
	t.Helper()

	users, err := NewUserService(db)
	require.NoError(t, err)

	method, err := users.SignUpEmailPassword(testContext(), tenantID, email, "password123")
	require.NoError(t, err)
	return method
}
