package web

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/oauth"
	"github.com/loomworks/loom/pkg/signing"
)

// UserIDHeader identifies the authenticated caller. Session handling lives
// in front of this API; the header is its hand-off.
const UserIDHeader = "X-User-ID"

// StateTTL bounds how long an OAuth redirect round-trip may take.
const StateTTL = 10 * time.Minute

// OAuthHandlers serves the provider connect flow: authorize URL issuance and
// the callback exchange.
type OAuthHandlers struct {
	logger          *slog.Logger
	service         *oauth.Service
	signer          *signing.StateSigner
	callbackBaseURL string
	uiRedirectURL   string
}

// NewOAuthHandlers wires the OAuth endpoints. callbackBaseURL is this API's
// externally reachable base URL; uiRedirectURL is where the browser lands
// after the callback.
func NewOAuthHandlers(
	logger *slog.Logger,
	service *oauth.Service,
	signer *signing.StateSigner,
	callbackBaseURL string,
	uiRedirectURL string,
) *OAuthHandlers {
	return &OAuthHandlers{
		logger:          logger.With("module", "web.oauth"),
		service:         service,
		signer:          signer,
		callbackBaseURL: callbackBaseURL,
		uiRedirectURL:   uiRedirectURL,
	}
}

// Authorize issues a signed state token and returns the provider
// authorization URL. The optional credentialId query reconnects an existing
// credential.
func (h *OAuthHandlers) Authorize(c fiber.Ctx) error {
	userID := c.Get(UserIDHeader)
	if userID == "" {
		return unauthorized(c, "authentication required")
	}

	provider, err := h.service.Provider(models.CredentialType(c.Params("provider")))
	if err != nil {
		return notFound(c, "unknown provider")
	}

	state, err := h.signer.CreateSignedState(userID, c.Query("credentialId"), StateTTL)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to create signed state", "error", err)

		return internalError(c)
	}

	return c.JSON(AuthorizeResponse{
		AuthorizeURL: provider.AuthorizeURL(h.redirectURI(string(provider.Type)), state),
	})
}

// Callback verifies the signed state, exchanges the code for tokens, stores
// the encrypted credential and redirects to the UI with an outcome message.
// State verification happens before anything else; a tampered or expired
// token creates no credential.
func (h *OAuthHandlers) Callback(c fiber.Ctx) error {
	providerName := c.Params("provider")

	payload, err := h.signer.VerifySignedState(c.Query("state"))
	if err != nil {
		return h.redirectWithError(c, "invalid or expired authorization state")
	}

	code := c.Query("code")
	if code == "" {
		return h.redirectWithError(c, "provider returned no authorization code")
	}

	credentialType := models.CredentialType(providerName)

	tokens, err := h.service.Exchange(c.Context(), credentialType, code, h.redirectURI(providerName))
	if err != nil {
		h.logger.WarnContext(c.Context(), "Code exchange failed", "provider", providerName, "error", err)

		return h.redirectWithError(c, "token exchange failed")
	}

	credential, err := h.service.StoreTokens(c.Context(), payload.UserID, payload.CredentialID, credentialType, tokens)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to store credential", "provider", providerName, "error", err)

		return h.redirectWithError(c, "failed to store credential")
	}

	target := h.uiRedirectURL + "?" + url.Values{
		"success":      {"true"},
		"credentialId": {credential.ID},
	}.Encode()

	return c.Redirect().To(target)
}

func (h *OAuthHandlers) redirectURI(providerName string) string {
	return h.callbackBaseURL + "/oauth/" + providerName + "/callback"
}

func (h *OAuthHandlers) redirectWithError(c fiber.Ctx, message string) error {
	target := h.uiRedirectURL + "?" + url.Values{"error": {message}}.Encode()

	return c.Redirect().To(target)
}
