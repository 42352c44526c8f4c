package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebauthnGeneratedOptions stores the server side of an in-flight WebAuthn
// registration ceremony: the issued challenge plus the session data the
// verifier needs to check the authenticator's response. Rows are short-lived
// and swept once expired.
type WebauthnGeneratedOptions struct {
	BaseModel

	TenantID         string `gorm:"not null;index" json:"tenant_id"`
	Email            string `gorm:"not null" json:"email"`
	RelyingPartyID   string `gorm:"not null" json:"relying_party_id"`
	RelyingPartyName string `json:"relying_party_name"`
	Origin           string `gorm:"not null" json:"origin"`

	Challenge   string         `gorm:"not null" json:"challenge"`
	SessionData datatypes.JSON `json:"-"`

	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}
