package models

import "time"

// DefaultTenantID is the namespace used when a request carries no tenant.
const DefaultTenantID = "public"

// Tenant is an isolated namespace of users and configuration. The recipe
// toggles form the tenant's capability set; they are threaded through manager
// calls rather than read as ambient state.
type Tenant struct {
	ID   string `gorm:"primaryKey" json:"tenant_id"`
	Name string `json:"name"`

	EmailPasswordEnabled bool `gorm:"not null;default:true" json:"emailpassword_enabled"`
	ThirdPartyEnabled    bool `gorm:"not null;default:true" json:"thirdparty_enabled"`
	PasswordlessEnabled  bool `gorm:"not null;default:true" json:"passwordless_enabled"`
	WebauthnEnabled      bool `gorm:"not null;default:true" json:"webauthn_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
