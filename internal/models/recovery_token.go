package models

import "time"

// RecoveryToken is the stored form of a single-use account recovery token.
// Only the SHA-256 digest of the raw token is persisted; consumption deletes
// the row, so a surviving record is the sole proof of validity.
type RecoveryToken struct {
	TokenHash string    `gorm:"primaryKey;size:64" json:"-"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	TenantID  string    `gorm:"not null;index" json:"tenant_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
