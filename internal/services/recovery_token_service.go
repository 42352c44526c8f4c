package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/models"
	"github.com/keyloom/keyloom/pkg/crypto"
	apperrors "github.com/keyloom/keyloom/pkg/errors"
	"github.com/keyloom/keyloom/pkg/metrics"
)

const (
	defaultRecoveryTokenLifetime = time.Hour
	defaultRecoveryTokenBytes    = 48
)

// ErrRecoverTokenInvalid covers every failed consumption uniformly: unknown
// hash, tenant mismatch, expiry, and reuse are indistinguishable to callers.
var ErrRecoverTokenInvalid = apperrors.NewStatus("RECOVER_ACCOUNT_TOKEN_INVALID_ERROR", "Recover account token is invalid, expired, or already used")

// RecoveryTokenOption customises the RecoveryTokenService.
type RecoveryTokenOption func(*RecoveryTokenService)

// WithTokenLifetime overrides the token validity window.
func WithTokenLifetime(d time.Duration) RecoveryTokenOption {
	return func(s *RecoveryTokenService) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithTokenSize adjusts the number of random bytes in generated tokens.
func WithTokenSize(size int) RecoveryTokenOption {
	return func(s *RecoveryTokenService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithTokenClock injects a custom time source, primarily for testing.
func WithTokenClock(clock func() time.Time) RecoveryTokenOption {
	return func(s *RecoveryTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RecoveryTokenService issues and consumes single-use account recovery
// tokens. Tokens are scoped to (tenant, user); only the hash is stored, and
// consumption deletes the row in the same storage operation that proves it
// existed, so two racing consumers cannot both succeed.
type RecoveryTokenService struct {
	db          *gorm.DB
	users       *UserService
	lifetime    time.Duration
	tokenLength int
	now         func() time.Time
}

// NewRecoveryTokenService constructs the service with the provided dependencies.
func NewRecoveryTokenService(db *gorm.DB, users *UserService, opts ...RecoveryTokenOption) (*RecoveryTokenService, error) {
	if db == nil {
		return nil, errors.New("recovery token service: db is required")
	}
	if users == nil {
		return nil, errors.New("recovery token service: user service is required")
	}

	service := &RecoveryTokenService{
		db:          db,
		users:       users,
		lifetime:    defaultRecoveryTokenLifetime,
		tokenLength: defaultRecoveryTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateToken issues a recovery token for the given user. The raw token is
// returned for out-of-band delivery and never persisted; multiple live
// tokens per user are allowed, each valid until its own expiry or use.
func (s *RecoveryTokenService) CreateToken(ctx context.Context, tenantID, userID, email string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, apperrors.NewBadRequest("userId is required")
	}

	if _, err := s.users.GetLoginMethod(ctx, userID); err != nil {
		return "", time.Time{}, err
	}

	raw, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("recovery token service: generate token: %w", err)
	}

	expiresAt := s.now().Add(s.lifetime)
	record := models.RecoveryToken{
		TokenHash: crypto.HashToken(raw),
		UserID:    userID,
		TenantID:  tenantID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		ExpiresAt: expiresAt,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", time.Time{}, fmt.Errorf("recovery token service: store token: %w", err)
	}

	metrics.RecoveryTokensIssued.WithLabelValues(tenantID).Inc()
	return raw, expiresAt, nil
}

// ConsumeToken validates and atomically consumes a recovery token. The
// conditional delete keyed on the token hash is what makes consumption
// exactly-once: of two concurrent consumers, only the one whose DELETE
// removes the row observes success.
func (s *RecoveryTokenService) ConsumeToken(ctx context.Context, tenantID, rawToken string) (userID, email string, err error) {
	hash := crypto.HashToken(rawToken)

	var record models.RecoveryToken
	err = s.db.WithContext(ctx).First(&record, "token_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RecoveryTokenConsumptions.WithLabelValues(tenantID, "invalid").Inc()
		return "", "", ErrRecoverTokenInvalid
	}
	if err != nil {
		return "", "", fmt.Errorf("recovery token service: load token: %w", err)
	}

	if record.TenantID != tenantID {
		metrics.RecoveryTokenConsumptions.WithLabelValues(tenantID, "invalid").Inc()
		return "", "", ErrRecoverTokenInvalid
	}

	if !s.now().Before(record.ExpiresAt) {
		// Lazily invalid; removing the row here is opportunistic hygiene.
		_ = s.db.WithContext(ctx).Delete(&models.RecoveryToken{}, "token_hash = ?", hash).Error
		metrics.RecoveryTokenConsumptions.WithLabelValues(tenantID, "invalid").Inc()
		return "", "", ErrRecoverTokenInvalid
	}

	result := s.db.WithContext(ctx).Delete(&models.RecoveryToken{}, "token_hash = ?", hash)
	if result.Error != nil {
		return "", "", fmt.Errorf("recovery token service: consume token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent consumer won the race.
		metrics.RecoveryTokenConsumptions.WithLabelValues(tenantID, "invalid").Inc()
		return "", "", ErrRecoverTokenInvalid
	}

	metrics.RecoveryTokenConsumptions.WithLabelValues(tenantID, "ok").Inc()
	return record.UserID, record.Email, nil
}

// DeleteExpired removes tokens past their expiry. Correctness never depends
// on this running; it exists to keep the table small.
func (s *RecoveryTokenService) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.RecoveryToken{}, "expires_at <= ?", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("recovery token service: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
