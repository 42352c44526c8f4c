package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keyloom/keyloom/internal/database/testutil"
	"github.com/keyloom/keyloom/internal/models"
	"github.com/keyloom/keyloom/internal/passkey"
	"github.com/keyloom/keyloom/internal/services"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	now := time.Now()

	expiredToken := models.RecoveryToken{
		TokenHash: "hash-expired",
		UserID:    "user-expired",
		TenantID:  models.DefaultTenantID,
		Email:     "expired@example.com",
		ExpiresAt: now.Add(-time.Hour),
	}
	activeToken := models.RecoveryToken{
		TokenHash: "hash-active",
		UserID:    "user-active",
		TenantID:  models.DefaultTenantID,
		Email:     "active@example.com",
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&expiredToken).Error)
	require.NoError(t, db.Create(&activeToken).Error)

	expiredOptions := models.WebauthnGeneratedOptions{
		TenantID:       models.DefaultTenantID,
		Email:          "expired@example.com",
		RelyingPartyID: "example.com",
		Origin:         "https://example.com",
		Challenge:      "challenge-expired",
		ExpiresAt:      now.Add(-time.Hour),
	}
	activeOptions := models.WebauthnGeneratedOptions{
		TenantID:       models.DefaultTenantID,
		Email:          "active@example.com",
		RelyingPartyID: "example.com",
		Origin:         "https://example.com",
		Challenge:      "challenge-active",
		ExpiresAt:      now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&expiredOptions).Error)
	require.NoError(t, db.Create(&activeOptions).Error)

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	tokens, err := services.NewRecoveryTokenService(db, users)
	require.NoError(t, err)
	passkeys, err := passkey.NewService(db, passkey.Config{
		RPID:          "example.com",
		RPDisplayName: "Example",
		RPOrigins:     []string{"https://example.com"},
	})
	require.NoError(t, err)

	cleaner := NewCleaner(tokens, passkeys)
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var remainingTokens []models.RecoveryToken
	require.NoError(t, db.Find(&remainingTokens).Error)
	require.Len(t, remainingTokens, 1)
	require.Equal(t, "hash-active", remainingTokens[0].TokenHash)

	var remainingOptions []models.WebauthnGeneratedOptions
	require.NoError(t, db.Find(&remainingOptions).Error)
	require.Len(t, remainingOptions, 1)
	require.Equal(t, "challenge-active", remainingOptions[0].Challenge)
}

func TestCleanerStartStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	tokens, err := services.NewRecoveryTokenService(db, users)
	require.NoError(t, err)

	cleaner := NewCleaner(tokens, nil)
	require.NoError(t, cleaner.Start())

	done := cleaner.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cleaner did not stop in time")
	}
}

func TestCleanerDisabled(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.RunOnce(context.Background()))
}
