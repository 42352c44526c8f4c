package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/models"
	apperrors "github.com/keyloom/keyloom/pkg/errors"
	"github.com/keyloom/keyloom/pkg/metrics"
)

var (
	// ErrCredentialExists indicates the credential id is already registered in this tenant.
	ErrCredentialExists = apperrors.NewStatus("CREDENTIAL_ALREADY_EXISTS", "Credential already registered for this tenant")
	// ErrInvalidCounter rejects sign counters that do not move strictly forward.
	ErrInvalidCounter = apperrors.NewStatus("INVALID_COUNTER", "Sign counter must be strictly greater than the stored value")
)

// RegisterCredentialInput describes a verified credential to persist.
type RegisterCredentialInput struct {
	TenantID        string
	RecipeUserID    string
	RelyingPartyID  string
	CredentialID    string
	PublicKey       []byte
	SignCounter     uint32
	AttestationType string
	Transports      datatypes.JSON
}

// CredentialSummary is the list-view projection of a stored credential.
type CredentialSummary struct {
	WebauthnCredentialID string `json:"webauthnCredentialId"`
	RelyingPartyID       string `json:"relyingPartyId"`
	RecipeUserID         string `json:"recipeUserId"`
	CreatedAt            int64  `json:"createdAt"`
}

// CredentialService manages the lifecycle of registered WebAuthn credentials,
// scoped per tenant. It never caches rows across requests; every operation
// round-trips to storage.
type CredentialService struct {
	db *gorm.DB
}

// NewCredentialService constructs a CredentialService instance.
func NewCredentialService(db *gorm.DB) (*CredentialService, error) {
	if db == nil {
		return nil, errors.New("credential service: db is required")
	}
	return &CredentialService{db: db}, nil
}

// Register persists a new credential row. Uniqueness of
// (tenant, credentialId) rests on the storage-level index rather than a
// check-then-insert, so concurrent registrations cannot both succeed.
// Re-registering an identical credential for the same user is a no-op.
func (s *CredentialService) Register(ctx context.Context, input RegisterCredentialInput) (*models.WebauthnCredential, error) {
	if strings.TrimSpace(input.CredentialID) == "" {
		return nil, apperrors.NewBadRequest("credentialId is required")
	}
	if strings.TrimSpace(input.RecipeUserID) == "" {
		return nil, apperrors.NewBadRequest("recipeUserId is required")
	}
	if len(input.PublicKey) == 0 {
		return nil, apperrors.NewBadRequest("publicKey is required")
	}

	credential := models.WebauthnCredential{
		CredentialID:    input.CredentialID,
		TenantID:        input.TenantID,
		RecipeUserID:    input.RecipeUserID,
		RelyingPartyID:  input.RelyingPartyID,
		PublicKey:       input.PublicKey,
		SignCounter:     input.SignCounter,
		AttestationType: input.AttestationType,
		Transports:      input.Transports,
	}

	err := s.db.WithContext(ctx).Create(&credential).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var existing models.WebauthnCredential
		loadErr := s.db.WithContext(ctx).
			First(&existing, "tenant_id = ? AND credential_id = ?", input.TenantID, input.CredentialID).Error
		if loadErr == nil && existing.RecipeUserID == input.RecipeUserID {
			metrics.CredentialRegistrations.WithLabelValues(input.TenantID, "ok").Inc()
			return &existing, nil
		}
		metrics.CredentialRegistrations.WithLabelValues(input.TenantID, "duplicate").Inc()
		return nil, ErrCredentialExists
	}
	if err != nil {
		metrics.CredentialRegistrations.WithLabelValues(input.TenantID, "error").Inc()
		return nil, fmt.Errorf("credential service: register: %w", err)
	}

	metrics.CredentialRegistrations.WithLabelValues(input.TenantID, "ok").Inc()
	return &credential, nil
}

// List returns credential summaries for a recipe user, oldest first. An
// unknown user id yields an empty slice, not an error: "no such user" and
// "no credentials" are deliberately indistinguishable here.
func (s *CredentialService) List(ctx context.Context, tenantID, recipeUserID string) ([]CredentialSummary, error) {
	var rows []models.WebauthnCredential
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND recipe_user_id = ?", tenantID, recipeUserID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("credential service: list: %w", err)
	}

	summaries := make([]CredentialSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, CredentialSummary{
			WebauthnCredentialID: row.CredentialID,
			RelyingPartyID:       row.RelyingPartyID,
			RecipeUserID:         row.RecipeUserID,
			CreatedAt:            row.CreatedAt.UnixMilli(),
		})
	}
	return summaries, nil
}

// ListCredentialIDs returns just the credential ids for a recipe user within
// a tenant, oldest first. Used by the identity aggregator.
func (s *CredentialService) ListCredentialIDs(ctx context.Context, tenantID, recipeUserID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.WebauthnCredential{}).
		Where("tenant_id = ? AND recipe_user_id = ?", tenantID, recipeUserID).
		Order("created_at ASC").
		Pluck("credential_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("credential service: list ids: %w", err)
	}
	return ids, nil
}

// Remove deletes a credential if it is owned by the user; removing an absent
// credential is a successful no-op.
func (s *CredentialService) Remove(ctx context.Context, tenantID, recipeUserID, credentialID string) error {
	err := s.db.WithContext(ctx).
		Delete(&models.WebauthnCredential{}, "tenant_id = ? AND recipe_user_id = ? AND credential_id = ?",
			tenantID, recipeUserID, credentialID).Error
	if err != nil {
		return fmt.Errorf("credential service: remove: %w", err)
	}
	return nil
}

// UpdateSignCounter persists a verified assertion's counter. The single
// conditional UPDATE enforces strict monotonicity: equal or lower values
// leave no row updated and fail, which is the cloned-authenticator signal.
// An unknown (tenantID, credentialID) pair fails the same way on purpose,
// so the error gives callers no signal about which credential ids exist.
func (s *CredentialService) UpdateSignCounter(ctx context.Context, tenantID, credentialID string, newCounter uint32) error {
	result := s.db.WithContext(ctx).Model(&models.WebauthnCredential{}).
		Where("tenant_id = ? AND credential_id = ? AND sign_counter < ?", tenantID, credentialID, newCounter).
		Update("sign_counter", newCounter)
	if result.Error != nil {
		return fmt.Errorf("credential service: update sign counter: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidCounter
	}
	return nil
}
