package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/database/testutil"
	"github.com/keyloom/keyloom/internal/passkey"
	"github.com/keyloom/keyloom/internal/services"
)

func testContext() context.Context {
	return context.Background()
}

type handlerFixture struct {
	db            *gorm.DB
	users         *services.UserService
	views         *services.UserViewService
	tokens        *services.RecoveryTokenService
	credentials   *services.CredentialService
	webauthn      *WebauthnHandler
	emailPassword *EmailPasswordHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	credentials, err := services.NewCredentialService(db)
	require.NoError(t, err)
	views, err := services.NewUserViewService(db, credentials)
	require.NoError(t, err)
	tokens, err := services.NewRecoveryTokenService(db, users)
	require.NoError(t, err)
	passkeys, err := passkey.NewService(db, passkey.Config{
		RPID:          "example.com",
		RPDisplayName: "Example",
		RPOrigins:     []string{"https://example.com"},
	})
	require.NoError(t, err)

	return &handlerFixture{
		db:            db,
		users:         users,
		views:         views,
		tokens:        tokens,
		credentials:   credentials,
		webauthn:      NewWebauthnHandler(users, views, tokens, credentials, passkeys),
		emailPassword: NewEmailPasswordHandler(users, views),
	}
}

// perform invokes a handler directly with a synthesized request, the way the
// router would after route matching.
func perform(t *testing.T, handler gin.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler(c)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func decodeString(t *testing.T, raw json.RawMessage) string {
	t.Helper()

	var value string
	require.NoError(t, json.Unmarshal(raw, &value))
	return value
}
