package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyloom/keyloom/internal/models"
)

func newViewFixture(t *testing.T) (*UserService, *CredentialService, *UserViewService) {
	t.Helper()

	db := openServicesTestDB(t)
	users, err := NewUserService(db)
	require.NoError(t, err)
	creds, err := NewCredentialService(db)
	require.NoError(t, err)
	views, err := NewUserViewService(db, creds)
	require.NoError(t, err)
	return users, creds, views
}

func TestBuildUserViewUnknownUser(t *testing.T) {
	_, _, views := newViewFixture(t)

	_, err := views.BuildUserView(testContext(), models.DefaultTenantID, "nonExistantId")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestBuildUserViewSingleMethod(t *testing.T) {
	users, _, views := newViewFixture(t)

	method, err := users.SignUpEmailPassword(testContext(), models.DefaultTenantID, "solo@example.com", "password123")
	require.NoError(t, err)

	view, err := views.BuildUserView(testContext(), models.DefaultTenantID, method.RecipeUserID)
	require.NoError(t, err)

	require.Equal(t, method.RecipeUserID, view.ID)
	require.True(t, view.IsPrimaryUser)
	require.Equal(t, []string{models.DefaultTenantID}, view.TenantIDs)
	require.Equal(t, []string{"solo@example.com"}, view.Emails)
	require.Empty(t, view.PhoneNumbers)
	require.Empty(t, view.ThirdParty)
	require.Empty(t, view.Webauthn.CredentialIDs)
	require.Len(t, view.LoginMethods, 1)
	require.Equal(t, models.RecipeEmailPassword, view.LoginMethods[0].RecipeID)
	require.Equal(t, method.TimeJoined, view.TimeJoined)
}

func TestBuildUserViewMergesLinkedMethods(t *testing.T) {
	users, _, views := newViewFixture(t)

	primary, err := users.SignUpEmailPassword(testContext(), models.DefaultTenantID, "primary@example.com", "password123")
	require.NoError(t, err)
	linked, err := users.CreateWebauthnUser(testContext(), "acme", "linked@example.com")
	require.NoError(t, err)

	require.NoError(t, users.LinkAccounts(testContext(), linked.RecipeUserID, primary.RecipeUserID))

	// Querying the linked (non-primary) recipe user resolves the primary view.
	view, err := views.BuildUserView(testContext(), models.DefaultTenantID, linked.RecipeUserID)
	require.NoError(t, err)

	require.Equal(t, primary.RecipeUserID, view.ID)
	require.False(t, view.IsPrimaryUser)
	require.ElementsMatch(t, []string{models.DefaultTenantID, "acme"}, view.TenantIDs)
	require.ElementsMatch(t, []string{"primary@example.com", "linked@example.com"}, view.Emails)
	require.Len(t, view.LoginMethods, 2)

	// loginMethods keeps registration order.
	require.Equal(t, primary.RecipeUserID, view.LoginMethods[0].RecipeUserID)
	require.Equal(t, linked.RecipeUserID, view.LoginMethods[1].RecipeUserID)

	// Querying the primary id reports isPrimaryUser.
	view, err = views.BuildUserView(testContext(), models.DefaultTenantID, primary.RecipeUserID)
	require.NoError(t, err)
	require.True(t, view.IsPrimaryUser)
}

func TestBuildUserViewCredentialsPerRecipeUser(t *testing.T) {
	users, creds, views := newViewFixture(t)

	primary, err := users.SignUpEmailPassword(testContext(), models.DefaultTenantID, "primary@example.com", "password123")
	require.NoError(t, err)
	webauthnUser, err := users.CreateWebauthnUser(testContext(), models.DefaultTenantID, "passkey@example.com")
	require.NoError(t, err)
	require.NoError(t, users.LinkAccounts(testContext(), webauthnUser.RecipeUserID, primary.RecipeUserID))

	_, err = creds.Register(testContext(), registerInput(models.DefaultTenantID, webauthnUser.RecipeUserID, "cred-1"))
	require.NoError(t, err)

	// Credentials are per recipe user, never merged across linked accounts.
	view, err := views.BuildUserView(testContext(), models.DefaultTenantID, webauthnUser.RecipeUserID)
	require.NoError(t, err)
	require.Equal(t, []string{"cred-1"}, view.Webauthn.CredentialIDs)

	view, err = views.BuildUserView(testContext(), models.DefaultTenantID, primary.RecipeUserID)
	require.NoError(t, err)
	require.Empty(t, view.Webauthn.CredentialIDs)
}

func TestUserViewJSONShape(t *testing.T) {
	users, _, views := newViewFixture(t)

	method, err := users.SignUpEmailPassword(testContext(), models.DefaultTenantID, "shape@example.com", "password123")
	require.NoError(t, err)

	view, err := views.BuildUserView(testContext(), models.DefaultTenantID, method.RecipeUserID)
	require.NoError(t, err)

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Len(t, decoded, 9)
	for _, field := range []string{"id", "isPrimaryUser", "tenantIds", "timeJoined", "emails", "phoneNumbers", "thirdParty", "webauthn", "loginMethods"} {
		require.Contains(t, decoded, field)
	}

	var webauthnField map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decoded["webauthn"], &webauthnField))
	require.Len(t, webauthnField, 1)
	require.Contains(t, webauthnField, "credentialIds")

	// Empty collections serialise as arrays, never null.
	require.JSONEq(t, `[]`, string(decoded["phoneNumbers"]))
	require.JSONEq(t, `[]`, string(decoded["thirdParty"]))
}
