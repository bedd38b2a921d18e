package web_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/oauth"
	"github.com/loomworks/loom/pkg/persistence/memory"
	"github.com/loomworks/loom/pkg/signing"
	"github.com/loomworks/loom/pkg/vault"
	"github.com/loomworks/loom/pkg/web"
)

const oauthTestSecret = "0123456789abcdef0123456789abcdef"

type oauthEnv struct {
	app        *fiber.App
	store      *memory.Persistence
	tokenCalls *atomic.Int32
}

func setupOAuthApp(t *testing.T) *oauthEnv {
	t.Helper()

	tokenCalls := &atomic.Int32{}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oauth.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	store := memory.NewPersistence()

	credentialVault, err := vault.New(oauthTestSecret)
	require.NoError(t, err)

	provider := oauth.NewProvider(models.CredentialTypeGitHub, "client-1", "client-secret")
	provider.TokenURL = tokenSrv.URL

	service := oauth.NewService([]oauth.Provider{provider}, credentialVault, store, slog.Default())

	signer, err := signing.NewStateSigner(oauthTestSecret)
	require.NoError(t, err)

	handlers := web.NewOAuthHandlers(slog.Default(), service, signer,
		"https://api.loom.example.com", "https://app.loom.example.com/credentials")

	app := fiber.New()
	app.Get("/oauth/:provider", handlers.Authorize)
	app.Get("/oauth/:provider/callback", handlers.Callback)

	return &oauthEnv{app: app, store: store, tokenCalls: tokenCalls}
}

func TestAuthorize_RequiresAuthenticatedCaller(t *testing.T) {
	env := setupOAuthApp(t)

	response, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/oauth/github", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
}

func TestAuthorize_ReturnsProviderURLWithState(t *testing.T) {
	env := setupOAuthApp(t)

	request := httptest.NewRequest(http.MethodGet, "/oauth/github", nil)
	request.Header.Set(web.UserIDHeader, "user-1")

	response, err := env.app.Test(request)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode)

	body := decodeBody(t, response)
	authorizeURL := body["authorize_url"].(string)
	assert.True(t, strings.HasPrefix(authorizeURL, "https://github.com/login/oauth/authorize?"))

	parsed, err := url.Parse(authorizeURL)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.Query().Get("state"))
	assert.Equal(t, "https://api.loom.example.com/oauth/github/callback", parsed.Query().Get("redirect_uri"))
}

func TestAuthorize_UnknownProvider(t *testing.T) {
	env := setupOAuthApp(t)

	request := httptest.NewRequest(http.MethodGet, "/oauth/bitbucket", nil)
	request.Header.Set(web.UserIDHeader, "user-1")

	response, err := env.app.Test(request)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestCallback_StoresCredentialAndRedirects(t *testing.T) {
	env := setupOAuthApp(t)

	signer, err := signing.NewStateSigner(oauthTestSecret)
	require.NoError(t, err)

	state, err := signer.CreateSignedState("user-1", "", web.StateTTL)
	require.NoError(t, err)

	response, err := env.app.Test(httptest.NewRequest(http.MethodGet,
		"/oauth/github/callback?code=code-1&state="+url.QueryEscape(state), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, response.StatusCode)

	location := response.Header.Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://app.loom.example.com/credentials?"))
	assert.Contains(t, location, "success=true")

	parsed, err := url.Parse(location)
	require.NoError(t, err)

	credentialID := parsed.Query().Get("credentialId")
	require.NotEmpty(t, credentialID)

	credential, err := env.store.CredentialByID(context.Background(), credentialID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", credential.Owner)
	assert.Equal(t, models.CredentialTypeGitHub, credential.Type)
	assert.NotEqual(t, "access-1", credential.EncryptedValue)
}

func TestCallback_TamperedStateCreatesNoCredential(t *testing.T) {
	env := setupOAuthApp(t)

	signer, err := signing.NewStateSigner(oauthTestSecret)
	require.NoError(t, err)

	state, err := signer.CreateSignedState("user-1", "", web.StateTTL)
	require.NoError(t, err)

	// Flip one character of the token.
	tampered := []byte(state)
	if tampered[3] == 'A' {
		tampered[3] = 'B'
	} else {
		tampered[3] = 'A'
	}

	response, err := env.app.Test(httptest.NewRequest(http.MethodGet,
		"/oauth/github/callback?code=code-1&state="+url.QueryEscape(string(tampered)), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, response.StatusCode)

	location := response.Header.Get("Location")
	assert.Contains(t, location, "error=")
	assert.NotContains(t, location, "success")

	// The code is never exchanged for a tampered state.
	assert.Equal(t, int32(0), env.tokenCalls.Load())
}

func TestCallback_MissingCode(t *testing.T) {
	env := setupOAuthApp(t)

	signer, err := signing.NewStateSigner(oauthTestSecret)
	require.NoError(t, err)

	state, err := signer.CreateSignedState("user-1", "", web.StateTTL)
	require.NoError(t, err)

	response, err := env.app.Test(httptest.NewRequest(http.MethodGet,
		"/oauth/github/callback?state="+url.QueryEscape(state), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, response.StatusCode)
	assert.Contains(t, response.Header.Get("Location"), "error=")
}
