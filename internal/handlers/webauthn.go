package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/keyloom/keyloom/internal/passkey"
	"github.com/keyloom/keyloom/internal/services"
	"github.com/keyloom/keyloom/pkg/response"
)

// WebauthnHandler exposes the WebAuthn recipe surface: registration
// ceremonies, credential lifecycle, and single-use account recovery.
type WebauthnHandler struct {
	users       *services.UserService
	views       *services.UserViewService
	tokens      *services.RecoveryTokenService
	credentials *services.CredentialService
	passkeys    *passkey.Service
}

func NewWebauthnHandler(
	users *services.UserService,
	views *services.UserViewService,
	tokens *services.RecoveryTokenService,
	credentials *services.CredentialService,
	passkeys *passkey.Service,
) *WebauthnHandler {
	return &WebauthnHandler{
		users:       users,
		views:       views,
		tokens:      tokens,
		credentials: credentials,
		passkeys:    passkeys,
	}
}

type registerOptionsRequest struct {
	Email            string `json:"email" validate:"required,email"`
	TenantID         string `json:"tenantId"`
	RelyingPartyID   string `json:"relyingPartyId"`
	RelyingPartyName string `json:"relyingPartyName"`
	Origin           string `json:"origin"`
}

// POST /recipe/webauthn/options/register
func (h *WebauthnHandler) RegisterOptions(c *gin.Context) {
	var req registerOptionsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	options, creation, err := h.passkeys.CreateRegistrationOptions(c.Request.Context(), passkey.RegistrationInput{
		TenantID:         resolveTenant(c, req.TenantID),
		Email:            req.Email,
		RelyingPartyID:   req.RelyingPartyID,
		RelyingPartyName: req.RelyingPartyName,
		Origin:           req.Origin,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"status":                     response.StatusOK,
		"webauthnGeneratedOptionsId": options.ID,
		"createdAt":                  options.CreatedAt.UnixMilli(),
		"expiresAt":                  options.ExpiresAt.UnixMilli(),
		"options":                    creation.Response,
	})
}

type signUpRequest struct {
	WebauthnGeneratedOptionsID string          `json:"webauthnGeneratedOptionsId" validate:"required"`
	Credential                 json.RawMessage `json:"credential" validate:"required"`
	TenantID                   string          `json:"tenantId"`
}

// POST /recipe/webauthn/signup
func (h *WebauthnHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenant := resolveTenant(c, req.TenantID)

	verified, options, err := h.passkeys.VerifyRegistration(
		c.Request.Context(), tenant, req.WebauthnGeneratedOptionsID, req.Credential)
	if err != nil {
		response.Error(c, err)
		return
	}

	method, err := h.users.CreateWebauthnUser(c.Request.Context(), tenant, options.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	_, err = h.credentials.Register(c.Request.Context(), services.RegisterCredentialInput{
		TenantID:        tenant,
		RecipeUserID:    method.RecipeUserID,
		RelyingPartyID:  options.RelyingPartyID,
		CredentialID:    verified.CredentialID,
		PublicKey:       verified.PublicKey,
		SignCounter:     verified.SignCounter,
		AttestationType: verified.AttestationType,
		Transports:      verified.Transports,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.views.BuildUserView(c.Request.Context(), tenant, method.RecipeUserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, userResponse{
		Status:       response.StatusOK,
		User:         view,
		RecipeUserID: method.RecipeUserID,
	})
}

type createRecoveryTokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	UserID   string `json:"userId" validate:"required"`
	TenantID string `json:"tenantId"`
}

// POST /recipe/webauthn/user/recover/token
func (h *WebauthnHandler) CreateRecoveryToken(c *gin.Context) {
	var req createRecoveryTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, _, err := h.tokens.CreateToken(
		c.Request.Context(), resolveTenant(c, req.TenantID), req.UserID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"status": response.StatusOK,
		"token":  token,
	})
}

// userResponse pairs an aggregated user view with the recipe user id the
// operation resolved. The shape is fixed: exactly status, user, recipeUserId.
type userResponse struct {
	Status       string             `json:"status"`
	User         *services.UserView `json:"user"`
	RecipeUserID string             `json:"recipeUserId"`
}

// GET /recipe/webauthn/user/recover
func (h *WebauthnHandler) ConsumeRecoveryToken(c *gin.Context) {
	token, ok := requireQuery(c, "token")
	if !ok {
		return
	}
	tenant := resolveTenant(c, "")

	userID, _, err := h.tokens.ConsumeToken(c.Request.Context(), tenant, token)
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.views.BuildUserView(c.Request.Context(), tenant, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, userResponse{
		Status:       response.StatusOK,
		User:         view,
		RecipeUserID: userID,
	})
}

type registerCredentialRequest struct {
	RecipeUserID               string          `json:"recipeUserId" validate:"required"`
	WebauthnGeneratedOptionsID string          `json:"webauthnGeneratedOptionsId" validate:"required"`
	Credential                 json.RawMessage `json:"credential" validate:"required"`
	TenantID                   string          `json:"tenantId"`
}

// POST /recipe/webauthn/user/credential/register
func (h *WebauthnHandler) RegisterCredential(c *gin.Context) {
	var req registerCredentialRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenant := resolveTenant(c, req.TenantID)

	if _, err := h.users.GetLoginMethod(c.Request.Context(), req.RecipeUserID); err != nil {
		response.Error(c, err)
		return
	}

	verified, options, err := h.passkeys.VerifyRegistration(
		c.Request.Context(), tenant, req.WebauthnGeneratedOptionsID, req.Credential)
	if err != nil {
		response.Error(c, err)
		return
	}

	_, err = h.credentials.Register(c.Request.Context(), services.RegisterCredentialInput{
		TenantID:        tenant,
		RecipeUserID:    req.RecipeUserID,
		RelyingPartyID:  options.RelyingPartyID,
		CredentialID:    verified.CredentialID,
		PublicKey:       verified.PublicKey,
		SignCounter:     verified.SignCounter,
		AttestationType: verified.AttestationType,
		Transports:      verified.Transports,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OKStatus(c)
}

// credentialListResponse is fixed to exactly status and credentials.
type credentialListResponse struct {
	Status      string                       `json:"status"`
	Credentials []services.CredentialSummary `json:"credentials"`
}

// GET /recipe/webauthn/user/credential/list
func (h *WebauthnHandler) ListCredentials(c *gin.Context) {
	recipeUserID, ok := requireQuery(c, "recipeUserId")
	if !ok {
		return
	}

	credentials, err := h.credentials.List(c.Request.Context(), resolveTenant(c, ""), recipeUserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, credentialListResponse{
		Status:      response.StatusOK,
		Credentials: credentials,
	})
}

type removeCredentialRequest struct {
	RecipeUserID         string `json:"recipeUserId" validate:"required"`
	WebauthnCredentialID string `json:"webauthnCredentialId" validate:"required"`
	TenantID             string `json:"tenantId"`
}

// POST /recipe/webauthn/user/credential/remove
func (h *WebauthnHandler) RemoveCredential(c *gin.Context) {
	var req removeCredentialRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.credentials.Remove(
		c.Request.Context(), resolveTenant(c, req.TenantID), req.RecipeUserID, req.WebauthnCredentialID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OKStatus(c)
}
