package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/models"
	apperrors "github.com/keyloom/keyloom/pkg/errors"
)

const defaultOptionsTTL = 5 * time.Minute

var (
	// ErrInvalidOptions indicates the generated-options id is unknown or expired.
	ErrInvalidOptions = apperrors.NewStatus("INVALID_OPTIONS_ERROR", "Registration options not found or expired")
	// ErrInvalidCredentials indicates the authenticator response failed parsing or verification.
	ErrInvalidCredentials = apperrors.NewStatus("INVALID_CREDENTIALS_ERROR", "Credential could not be verified")
)

// Config carries the default relying-party settings; requests may override
// them per ceremony.
type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	OptionsTTL    time.Duration
}

// RegistrationInput describes a request to start a registration ceremony.
type RegistrationInput struct {
	TenantID         string
	Email            string
	RelyingPartyID   string
	RelyingPartyName string
	Origin           string
}

// VerifiedCredential is the outcome of a successful registration ceremony,
// ready for persistence by the credential lifecycle layer.
type VerifiedCredential struct {
	CredentialID    string
	PublicKey       []byte
	SignCounter     uint32
	AttestationType string
	Transports      datatypes.JSON
}

// Service is the boundary to the WebAuthn ceremony cryptography. Challenge
// generation, attestation parsing, and signature verification are delegated
// to the go-webauthn library; this service persists the in-flight ceremony
// state and translates failures into recipe statuses.
type Service struct {
	db  *gorm.DB
	cfg Config
	ttl time.Duration
	now func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithClock injects a custom time source, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewService constructs a passkey ceremony service.
func NewService(db *gorm.DB, cfg Config, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("passkey service: db is required")
	}

	ttl := cfg.OptionsTTL
	if ttl <= 0 {
		ttl = defaultOptionsTTL
	}

	service := &Service{db: db, cfg: cfg, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateRegistrationOptions starts a registration ceremony: it generates a
// challenge, stores the server-side session state, and returns the creation
// options for the client.
func (s *Service) CreateRegistrationOptions(ctx context.Context, input RegistrationInput) (*models.WebauthnGeneratedOptions, *protocol.CredentialCreation, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, nil, apperrors.NewBadRequest("email is required")
	}

	rpID, rpName, origin := s.relyingParty(input)

	provider, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpName,
		RPOrigins:     []string{origin},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("passkey service: configure relying party: %w", err)
	}

	user := &ceremonyUser{id: []byte(uuid.NewString()), name: email}
	creation, session, err := provider.BeginRegistration(user,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("passkey service: begin registration: %w", err)
	}

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return nil, nil, fmt.Errorf("passkey service: encode session: %w", err)
	}

	options := models.WebauthnGeneratedOptions{
		TenantID:         input.TenantID,
		Email:            email,
		RelyingPartyID:   rpID,
		RelyingPartyName: rpName,
		Origin:           origin,
		Challenge:        session.Challenge,
		SessionData:      datatypes.JSON(sessionJSON),
		ExpiresAt:        s.now().Add(s.ttl),
	}

	if err := s.db.WithContext(ctx).Create(&options).Error; err != nil {
		return nil, nil, fmt.Errorf("passkey service: store options: %w", err)
	}

	return &options, creation, nil
}

// VerifyRegistration completes a registration ceremony. The stored options
// row is consumed on success; verification failures leave it in place so the
// client may retry with a corrected response until the options expire.
func (s *Service) VerifyRegistration(ctx context.Context, tenantID, optionsID string, credentialJSON []byte) (*VerifiedCredential, *models.WebauthnGeneratedOptions, error) {
	var options models.WebauthnGeneratedOptions
	err := s.db.WithContext(ctx).First(&options, "id = ? AND tenant_id = ?", optionsID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrInvalidOptions
	}
	if err != nil {
		return nil, nil, fmt.Errorf("passkey service: load options: %w", err)
	}
	if !s.now().Before(options.ExpiresAt) {
		return nil, nil, ErrInvalidOptions
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(options.SessionData, &session); err != nil {
		return nil, nil, fmt.Errorf("passkey service: decode session: %w", err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(credentialJSON)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	provider, err := webauthn.New(&webauthn.Config{
		RPID:          options.RelyingPartyID,
		RPDisplayName: options.RelyingPartyName,
		RPOrigins:     []string{options.Origin},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("passkey service: configure relying party: %w", err)
	}

	user := &ceremonyUser{id: session.UserID, name: options.Email}
	credential, err := provider.CreateCredential(user, session, parsed)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.db.WithContext(ctx).Delete(&models.WebauthnGeneratedOptions{}, "id = ?", options.ID).Error; err != nil {
		return nil, nil, fmt.Errorf("passkey service: consume options: %w", err)
	}

	verified := &VerifiedCredential{
		CredentialID:    base64.RawURLEncoding.EncodeToString(credential.ID),
		PublicKey:       credential.PublicKey,
		SignCounter:     credential.Authenticator.SignCount,
		AttestationType: credential.AttestationType,
	}
	if len(credential.Transport) > 0 {
		if raw, marshalErr := json.Marshal(credential.Transport); marshalErr == nil {
			verified.Transports = datatypes.JSON(raw)
		}
	}

	return verified, &options, nil
}

// DeleteExpiredOptions sweeps ceremony state past its expiry.
func (s *Service) DeleteExpiredOptions(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.WebauthnGeneratedOptions{}, "expires_at <= ?", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("passkey service: delete expired options: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Service) relyingParty(input RegistrationInput) (rpID, rpName, origin string) {
	rpID = strings.TrimSpace(input.RelyingPartyID)
	if rpID == "" {
		rpID = s.cfg.RPID
	}
	rpName = strings.TrimSpace(input.RelyingPartyName)
	if rpName == "" {
		rpName = s.cfg.RPDisplayName
	}
	origin = strings.TrimSpace(input.Origin)
	if origin == "" && len(s.cfg.RPOrigins) > 0 {
		origin = s.cfg.RPOrigins[0]
	}
	return rpID, rpName, origin
}

// ceremonyUser adapts the pending registration to the webauthn.User
// interface. The id becomes the authenticator-side user handle.
type ceremonyUser struct {
	id   []byte
	name string
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return u.id
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return nil
}
