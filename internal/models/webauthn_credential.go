package models

import "gorm.io/datatypes"

// WebauthnCredential is a registered authenticator public key bound to a
// recipe user within one tenant. CredentialID is the authenticator-assigned
// identifier (base64url); the composite unique index closes the
// check-then-insert race on concurrent registrations.
type WebauthnCredential struct {
	BaseModel

	CredentialID   string `gorm:"not null;uniqueIndex:idx_webauthn_credentials_tenant_credential" json:"credential_id"`
	TenantID       string `gorm:"not null;uniqueIndex:idx_webauthn_credentials_tenant_credential" json:"tenant_id"`
	RecipeUserID   string `gorm:"type:uuid;not null;index" json:"recipe_user_id"`
	RelyingPartyID string `gorm:"not null" json:"relying_party_id"`

	PublicKey []byte `gorm:"not null" json:"-"`

	// SignCounter is the authenticator's anti-replay counter. It only moves
	// forward; a verified assertion with a lower value indicates a cloned
	// authenticator.
	SignCounter uint32 `gorm:"not null;default:0" json:"sign_counter"`

	AttestationType string         `json:"attestation_type"`
	Transports      datatypes.JSON `json:"transports,omitempty"`
}
