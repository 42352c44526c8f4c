package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/keyloom/keyloom/internal/models"
	"github.com/keyloom/keyloom/internal/services"
)

func seedCredential(t *testing.T, f *handlerFixture, recipeUserID, credentialID string) {
	t.Helper()

	_, err := f.credentials.Register(testContext(), services.RegisterCredentialInput{
		TenantID:       models.DefaultTenantID,
		RecipeUserID:   recipeUserID,
		RelyingPartyID: "example.com",
		CredentialID:   credentialID,
		PublicKey:      []byte("public-key"),
		Transports:     datatypes.JSON(`["internal"]`),
	})
	require.NoError(t, err)
}

func TestConsumeRecoveryTokenMissingToken(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.ConsumeRecoveryToken, http.MethodGet, "/recipe/webauthn/user/recover", nil)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody(t, recorder)
	require.Equal(t, "Field name 'token' is missing in GET request", decodeString(t, body["message"]))
}

func TestConsumeRecoveryTokenNeverIssued(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.ConsumeRecoveryToken, http.MethodGet, "/recipe/webauthn/user/recover?token=abcd", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	require.Len(t, body, 1)
	require.Equal(t, "RECOVER_ACCOUNT_TOKEN_INVALID_ERROR", decodeString(t, body["status"]))
}

func TestRecoveryTokenUnknownUser(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.CreateRecoveryToken, http.MethodPost, "/recipe/webauthn/user/recover/token", map[string]string{
		"email":  "ghost@example.com",
		"userId": "missing",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	require.Equal(t, "UNKNOWN_USER_ID_ERROR", decodeString(t, body["status"]))
}

func TestRecoveryFlowEndToEnd(t *testing.T) {
	f := newHandlerFixture(t)

	method, err := f.users.SignUpEmailPassword(testContext(), models.DefaultTenantID, "alice@example.com", "password123")
	require.NoError(t, err)

	issueRecorder := perform(t, f.webauthn.CreateRecoveryToken, http.MethodPost, "/recipe/webauthn/user/recover/token", map[string]string{
		"email":  "alice@example.com",
		"userId": method.RecipeUserID,
	})
	require.Equal(t, http.StatusOK, issueRecorder.Code)
	issued := decodeBody(t, issueRecorder)
	require.Equal(t, "OK", decodeString(t, issued["status"]))
	token := decodeString(t, issued["token"])
	require.NotEmpty(t, token)

	recorder := perform(t, f.webauthn.ConsumeRecoveryToken, http.MethodGet, "/recipe/webauthn/user/recover?token="+token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	require.Len(t, body, 3)
	require.Equal(t, "OK", decodeString(t, body["status"]))
	require.Equal(t, method.RecipeUserID, decodeString(t, body["recipeUserId"]))

	var user map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["user"], &user))
	require.Len(t, user, 9)
	for _, field := range []string{
		"id", "isPrimaryUser", "tenantIds", "timeJoined",
		"emails", "phoneNumbers", "thirdParty", "webauthn", "loginMethods",
	} {
		require.Contains(t, user, field)
	}

	var webauthnField map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(user["webauthn"], &webauthnField))
	require.Len(t, webauthnField, 1)
	require.Contains(t, webauthnField, "credentialIds")

	// The token is single use: a second presentation fails.
	second := perform(t, f.webauthn.ConsumeRecoveryToken, http.MethodGet, "/recipe/webauthn/user/recover?token="+token, nil)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "RECOVER_ACCOUNT_TOKEN_INVALID_ERROR", decodeString(t, decodeBody(t, second)["status"]))
}

func TestListCredentialsMissingRecipeUserID(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.ListCredentials, http.MethodGet, "/recipe/webauthn/user/credential/list", nil)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody(t, recorder)
	require.Equal(t, "Field name 'recipeUserId' is missing in GET request", decodeString(t, body["message"]))
}

func TestListCredentialsEmpty(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.ListCredentials, http.MethodGet, "/recipe/webauthn/user/credential/list?recipeUserId=unknown", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	require.Len(t, body, 2)
	require.Equal(t, "OK", decodeString(t, body["status"]))
	require.Equal(t, "[]", string(body["credentials"]))
}

func TestListCredentialsShape(t *testing.T) {
	f := newHandlerFixture(t)

	method, err := f.users.CreateWebauthnUser(testContext(), models.DefaultTenantID, "bob@example.com")
	require.NoError(t, err)
	seedCredential(t, f, method.RecipeUserID, "cred-1")
	seedCredential(t, f, method.RecipeUserID, "cred-2")

	recorder := perform(t, f.webauthn.ListCredentials, http.MethodGet, "/recipe/webauthn/user/credential/list?recipeUserId="+method.RecipeUserID, nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	require.Len(t, body, 2)

	var entries []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["credentials"], &entries))
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.Len(t, entry, 4)
		for _, field := range []string{"webauthnCredentialId", "relyingPartyId", "recipeUserId", "createdAt"} {
			require.Contains(t, entry, field)
		}
		require.Equal(t, method.RecipeUserID, decodeString(t, entry["recipeUserId"]))
	}
	require.Equal(t, "cred-1", decodeString(t, entries[0]["webauthnCredentialId"]))
	require.Equal(t, "cred-2", decodeString(t, entries[1]["webauthnCredentialId"]))
}

func TestRemoveCredential(t *testing.T) {
	f := newHandlerFixture(t)

	method, err := f.users.CreateWebauthnUser(testContext(), models.DefaultTenantID, "carol@example.com")
	require.NoError(t, err)
	seedCredential(t, f, method.RecipeUserID, "cred-1")

	recorder := perform(t, f.webauthn.RemoveCredential, http.MethodPost, "/recipe/webauthn/user/credential/remove", map[string]string{
		"recipeUserId":         method.RecipeUserID,
		"webauthnCredentialId": "cred-1",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "OK", decodeString(t, decodeBody(t, recorder)["status"]))

	list, err := f.credentials.List(testContext(), models.DefaultTenantID, method.RecipeUserID)
	require.NoError(t, err)
	require.Empty(t, list)

	// Removing a credential that is already gone still reports success.
	again := perform(t, f.webauthn.RemoveCredential, http.MethodPost, "/recipe/webauthn/user/credential/remove", map[string]string{
		"recipeUserId":         method.RecipeUserID,
		"webauthnCredentialId": "cred-1",
	})
	require.Equal(t, http.StatusOK, again.Code)
}

func TestRegisterOptions(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.RegisterOptions, http.MethodPost, "/recipe/webauthn/options/register", map[string]string{
		"email": "dave@example.com",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	require.Equal(t, "OK", decodeString(t, body["status"]))
	require.NotEmpty(t, decodeString(t, body["webauthnGeneratedOptionsId"]))

	var options map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["options"], &options))
	require.Contains(t, options, "challenge")
	require.Contains(t, options, "rp")
	require.Contains(t, options, "user")
}

func TestRegisterOptionsMissingEmail(t *testing.T) {
	f := newHandlerFixture(t)

	recorder := perform(t, f.webauthn.RegisterOptions, http.MethodPost, "/recipe/webauthn/options/register", map[string]string{})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody(t, recorder)
	require.Equal(t, "Field name 'email' is missing in POST request", decodeString(t, body["message"]))
}

func TestRegisterCredentialUnknownOptions(t *testing.T) {
	f := newHandlerFixture(t)

	method, err := f.users.CreateWebauthnUser(testContext(), models.DefaultTenantID, "erin@example.com")
	require.NoError(t, err)

	recorder := perform(t, f.webauthn.RegisterCredential, http.MethodPost, "/recipe/webauthn/user/credential/register", map[string]any{
		"recipeUserId":               method.RecipeUserID,
		"webauthnGeneratedOptionsId": "no-such-options",
		"credential":                 map[string]string{"id": "cred"},
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "INVALID_OPTIONS_ERROR", decodeString(t, decodeBody(t, recorder)["status"]))
}

func TestSignUpGarbageCredential(t *testing.T) {
	f := newHandlerFixture(t)

	optionsRecorder := perform(t, f.webauthn.RegisterOptions, http.MethodPost, "/recipe/webauthn/options/register", map[string]string{
		"email": "frank@example.com",
	})
	require.Equal(t, http.StatusOK, optionsRecorder.Code)
	optionsID := decodeString(t, decodeBody(t, optionsRecorder)["webauthnGeneratedOptionsId"])

	recorder := perform(t, f.webauthn.SignUp, http.MethodPost, "/recipe/webauthn/signup", map[string]any{
		"webauthnGeneratedOptionsId": optionsID,
		"credential":                 map[string]string{"id": "not-a-real-attestation"},
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "INVALID_CREDENTIALS_ERROR", decodeString(t, decodeBody(t, recorder)["status"]))
}
