package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/models"
	"github.com/keyloom/keyloom/pkg/crypto"
	apperrors "github.com/keyloom/keyloom/pkg/errors"
)

var (
	// ErrUnknownUserID indicates no login method exists for the given recipe user id.
	ErrUnknownUserID = apperrors.NewStatus("UNKNOWN_USER_ID_ERROR", "Unknown user id")
	// ErrEmailAlreadyExists indicates the email is already registered for the recipe in this tenant.
	ErrEmailAlreadyExists = apperrors.NewStatus("EMAIL_ALREADY_EXISTS_ERROR", "Email already exists")
	// ErrTenantNotFound indicates the request names a tenant that was never created.
	ErrTenantNotFound = apperrors.New("TENANT_NOT_FOUND", "Tenant does not exist", http.StatusBadRequest)
	// ErrRecipeDisabled indicates the tenant has the requested recipe switched off.
	ErrRecipeDisabled = apperrors.New("RECIPE_DISABLED", "Recipe is not enabled for this tenant", http.StatusBadRequest)
)

// UserService owns login-method records and the account-linking graph.
type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, now: time.Now}, nil
}

// WithClock overrides the time source, primarily for tests.
func (s *UserService) WithClock(clock func() time.Time) *UserService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// SignUpEmailPassword provisions a new unlinked email-password login method.
func (s *UserService) SignUpEmailPassword(ctx context.Context, tenantID, email, password string) (*models.LoginMethod, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	tenant, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.EmailPasswordEnabled {
		return nil, ErrRecipeDisabled
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	method := s.newLoginMethod(tenantID, models.RecipeEmailPassword)
	method.Email = &email
	method.PasswordHash = hashed

	// Email uniqueness is per tenant, and tenant membership lives in a JSON
	// set column, so the existence check filters candidates in Go. The
	// transaction keeps check and insert on one connection; a plain unique
	// index cannot express "same email, disjoint tenant sets".
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.LoginMethod
		if err := tx.Where("recipe_id = ? AND email = ?", models.RecipeEmailPassword, email).
			Find(&candidates).Error; err != nil {
			return fmt.Errorf("user service: check email: %w", err)
		}
		for i := range candidates {
			if candidates[i].HasTenant(tenantID) {
				return ErrEmailAlreadyExists
			}
		}
		if err := tx.Create(method).Error; err != nil {
			return fmt.Errorf("user service: create login method: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// CreateWebauthnUser provisions the login method backing a successful
// WebAuthn signup ceremony. The email is considered verified: possession of
// the authenticator was proven during registration.
func (s *UserService) CreateWebauthnUser(ctx context.Context, tenantID, email string) (*models.LoginMethod, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	tenant, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.WebauthnEnabled {
		return nil, ErrRecipeDisabled
	}

	method := s.newLoginMethod(tenantID, models.RecipeWebauthn)
	method.Email = &email
	method.Verified = true

	if err := s.db.WithContext(ctx).Create(method).Error; err != nil {
		return nil, fmt.Errorf("user service: create webauthn user: %w", err)
	}
	return method, nil
}

// GetLoginMethod fetches a login method by recipe user id.
func (s *UserService) GetLoginMethod(ctx context.Context, recipeUserID string) (*models.LoginMethod, error) {
	var method models.LoginMethod
	err := s.db.WithContext(ctx).First(&method, "recipe_user_id = ?", recipeUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownUserID
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load login method: %w", err)
	}
	return &method, nil
}

// LinkAccounts merges the link group of recipeUserID into the primary user's
// group. Every method already linked to the recipe user follows it.
func (s *UserService) LinkAccounts(ctx context.Context, recipeUserID, primaryUserID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.LoginMethod
		if err := tx.First(&target, "recipe_user_id = ?", primaryUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownUserID
			}
			return err
		}

		var source models.LoginMethod
		if err := tx.First(&source, "recipe_user_id = ?", recipeUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownUserID
			}
			return err
		}

		return tx.Model(&models.LoginMethod{}).
			Where("primary_user_id = ?", source.PrimaryUserID).
			Update("primary_user_id", target.PrimaryUserID).Error
	})
}

// DeleteLoginMethod removes a login method together with its WebAuthn
// credentials and any outstanding recovery tokens.
func (s *UserService) DeleteLoginMethod(ctx context.Context, recipeUserID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.WebauthnCredential{}, "recipe_user_id = ?", recipeUserID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.RecoveryToken{}, "user_id = ?", recipeUserID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.LoginMethod{}, "recipe_user_id = ?", recipeUserID).Error
	})
}

func (s *UserService) loadTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load tenant: %w", err)
	}
	return &tenant, nil
}

func (s *UserService) newLoginMethod(tenantID, recipeID string) *models.LoginMethod {
	id := uuid.NewString()
	return &models.LoginMethod{
		RecipeUserID:  id,
		PrimaryUserID: id,
		RecipeID:      recipeID,
		TenantIDs:     models.TenantJSON(tenantID),
		TimeJoined:    s.now().UnixMilli(),
	}
}
