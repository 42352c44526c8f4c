package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/models"
	apperrors "github.com/keyloom/keyloom/pkg/errors"
)

// ErrUserNotFound indicates no login method exists at all for the queried id.
var ErrUserNotFound = apperrors.NewStatus("USER_NOT_FOUND", "User not found")

// ThirdPartyBinding identifies a user at an external provider.
type ThirdPartyBinding struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// WebauthnSummary nests the credential ids owned by the queried recipe user.
type WebauthnSummary struct {
	CredentialIDs []string `json:"credentialIds"`
}

// LoginMethodView is the per-recipe identity record inside a user view.
type LoginMethodView struct {
	RecipeID     string             `json:"recipeId"`
	RecipeUserID string             `json:"recipeUserId"`
	TenantIDs    []string           `json:"tenantIds"`
	Email        *string            `json:"email,omitempty"`
	PhoneNumber  *string            `json:"phoneNumber,omitempty"`
	ThirdParty   *ThirdPartyBinding `json:"thirdParty,omitempty"`
	Verified     bool               `json:"verified"`
	TimeJoined   int64              `json:"timeJoined"`
}

// UserView is the read-only aggregate of a primary user and every login
// method linked to it. It is built on demand and never persisted; its JSON
// shape is fixed so responses stay total and enumerable.
type UserView struct {
	ID            string              `json:"id"`
	IsPrimaryUser bool                `json:"isPrimaryUser"`
	TenantIDs     []string            `json:"tenantIds"`
	TimeJoined    int64               `json:"timeJoined"`
	Emails        []string            `json:"emails"`
	PhoneNumbers  []string            `json:"phoneNumbers"`
	ThirdParty    []ThirdPartyBinding `json:"thirdParty"`
	Webauthn      WebauthnSummary     `json:"webauthn"`
	LoginMethods  []LoginMethodView   `json:"loginMethods"`
}

// UserViewService merges a recipe user's core identity with data from all
// linked login methods. Pure read-side join; linkage is never mutated here.
type UserViewService struct {
	db          *gorm.DB
	credentials *CredentialService
}

// NewUserViewService constructs a UserViewService instance.
func NewUserViewService(db *gorm.DB, credentials *CredentialService) (*UserViewService, error) {
	if db == nil {
		return nil, errors.New("user view service: db is required")
	}
	if credentials == nil {
		return nil, errors.New("user view service: credential service is required")
	}
	return &UserViewService{db: db, credentials: credentials}, nil
}

// BuildUserView resolves the primary user for the given recipe user id and
// aggregates every linked login method into one view. WebAuthn credential
// ids are fetched for the queried recipe user only: credentials are
// per-recipe-user and never merged across linked accounts.
func (s *UserViewService) BuildUserView(ctx context.Context, tenantID, recipeUserID string) (*UserView, error) {
	var queried models.LoginMethod
	err := s.db.WithContext(ctx).First(&queried, "recipe_user_id = ?", recipeUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user view service: load login method: %w", err)
	}

	var methods []models.LoginMethod
	err = s.db.WithContext(ctx).
		Where("primary_user_id = ?", queried.PrimaryUserID).
		Order("time_joined ASC").
		Find(&methods).Error
	if err != nil {
		return nil, fmt.Errorf("user view service: load linked methods: %w", err)
	}

	credentialIDs, err := s.credentials.ListCredentialIDs(ctx, tenantID, recipeUserID)
	if err != nil {
		return nil, err
	}
	if credentialIDs == nil {
		credentialIDs = []string{}
	}

	view := &UserView{
		ID:            queried.PrimaryUserID,
		IsPrimaryUser: recipeUserID == queried.PrimaryUserID,
		TenantIDs:     []string{},
		Emails:        []string{},
		PhoneNumbers:  []string{},
		ThirdParty:    []ThirdPartyBinding{},
		Webauthn:      WebauthnSummary{CredentialIDs: credentialIDs},
		LoginMethods:  make([]LoginMethodView, 0, len(methods)),
	}

	seenTenants := map[string]bool{}
	seenEmails := map[string]bool{}
	seenPhones := map[string]bool{}
	seenThirdParty := map[string]bool{}

	for i, method := range methods {
		if i == 0 || method.TimeJoined < view.TimeJoined {
			view.TimeJoined = method.TimeJoined
		}

		tenants := method.Tenants()
		for _, tenant := range tenants {
			if !seenTenants[tenant] {
				seenTenants[tenant] = true
				view.TenantIDs = append(view.TenantIDs, tenant)
			}
		}
		if method.Email != nil && !seenEmails[*method.Email] {
			seenEmails[*method.Email] = true
			view.Emails = append(view.Emails, *method.Email)
		}
		if method.PhoneNumber != nil && !seenPhones[*method.PhoneNumber] {
			seenPhones[*method.PhoneNumber] = true
			view.PhoneNumbers = append(view.PhoneNumbers, *method.PhoneNumber)
		}

		methodView := LoginMethodView{
			RecipeID:     method.RecipeID,
			RecipeUserID: method.RecipeUserID,
			TenantIDs:    tenants,
			Email:        method.Email,
			PhoneNumber:  method.PhoneNumber,
			Verified:     method.Verified,
			TimeJoined:   method.TimeJoined,
		}
		if method.ThirdPartyID != nil && method.ThirdPartyUserID != nil {
			binding := ThirdPartyBinding{ID: *method.ThirdPartyID, UserID: *method.ThirdPartyUserID}
			methodView.ThirdParty = &binding

			key := binding.ID + "|" + binding.UserID
			if !seenThirdParty[key] {
				seenThirdParty[key] = true
				view.ThirdParty = append(view.ThirdParty, binding)
			}
		}

		view.LoginMethods = append(view.LoginMethods, methodView)
	}

	return view, nil
}
