package oauth

import (
	"net/url"
	"strings"

	"github.com/loomworks/loom/pkg/models"
)

// Provider describes one OAuth provider the engine can exchange and refresh
// tokens with.
type Provider struct {
	Type         models.CredentialType
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// Default authorization and token endpoints per supported provider.
var defaultEndpoints = map[models.CredentialType]struct {
	authURL  string
	tokenURL string
}{
	models.CredentialTypeGitHub: {
		authURL:  "https://github.com/login/oauth/authorize",
		tokenURL: "https://github.com/login/oauth/access_token",
	},
	models.CredentialTypeGoogle: {
		authURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL: "https://oauth2.googleapis.com/token",
	},
	models.CredentialTypeSlack: {
		authURL:  "https://slack.com/oauth/v2/authorize",
		tokenURL: "https://slack.com/api/oauth.v2.access",
	},
}

// NewProvider builds a provider from credentials, filling in the well-known
// endpoints when none are given.
func NewProvider(credentialType models.CredentialType, clientID, clientSecret string, scopes ...string) Provider {
	provider := Provider{
		Type:         credentialType,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
	}

	if endpoints, ok := defaultEndpoints[credentialType]; ok {
		provider.AuthURL = endpoints.authURL
		provider.TokenURL = endpoints.tokenURL
	}

	return provider
}

// AuthorizeURL builds the provider authorization URL carrying the signed
// state token and redirect target.
func (p Provider) AuthorizeURL(redirectURI, state string) string {
	query := url.Values{}
	query.Set("client_id", p.ClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)

	if len(p.Scopes) > 0 {
		query.Set("scope", strings.Join(p.Scopes, " "))
	}

	return p.AuthURL + "?" + query.Encode()
}
