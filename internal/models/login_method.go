package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Recipe identifiers for the supported login methods.
const (
	RecipeEmailPassword = "emailpassword"
	RecipeThirdParty    = "thirdparty"
	RecipePasswordless  = "passwordless"
	RecipeWebauthn      = "webauthn"
)

// LoginMethod is a recipe-scoped identity record. Accounts may have several
// login methods merged under one primary identity: PrimaryUserID points to
// the recipe user id that anchors the link group (equal to RecipeUserID for
// unlinked accounts).
type LoginMethod struct {
	RecipeUserID  string `gorm:"primaryKey;type:uuid" json:"recipe_user_id"`
	PrimaryUserID string `gorm:"type:uuid;not null;index" json:"primary_user_id"`
	RecipeID      string `gorm:"not null;index" json:"recipe_id"`

	// TenantIDs is the JSON-encoded set of tenants this method is active in.
	TenantIDs datatypes.JSON `gorm:"not null" json:"tenant_ids"`

	Email            *string `gorm:"index" json:"email,omitempty"`
	PhoneNumber      *string `json:"phone_number,omitempty"`
	ThirdPartyID     *string `json:"third_party_id,omitempty"`
	ThirdPartyUserID *string `json:"third_party_user_id,omitempty"`
	PasswordHash     string  `json:"-"`
	Verified         bool    `json:"verified"`

	// TimeJoined is epoch milliseconds; login methods aggregate in this order.
	TimeJoined int64 `gorm:"not null;index" json:"time_joined"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tenants decodes the tenant id set. A corrupt column decodes as empty rather
// than failing the read path.
func (m *LoginMethod) Tenants() []string {
	var tenants []string
	if len(m.TenantIDs) > 0 {
		_ = json.Unmarshal(m.TenantIDs, &tenants)
	}
	return tenants
}

// HasTenant reports whether the method is active in the given tenant.
func (m *LoginMethod) HasTenant(tenantID string) bool {
	for _, id := range m.Tenants() {
		if id == tenantID {
			return true
		}
	}
	return false
}

// TenantJSON encodes a tenant id set for storage.
func TenantJSON(tenantIDs ...string) datatypes.JSON {
	if len(tenantIDs) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	raw, _ := json.Marshal(tenantIDs)
	return datatypes.JSON(raw)
}
