// Package oauth exchanges authorization codes for tokens and keeps stored
// access tokens valid by refreshing them ahead of expiry.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/vault"
)

// RefreshSkew is how far before expiry a token is considered expired and
// rotated, absorbing clock drift and request latency.
const RefreshSkew = 60 * time.Second

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrNoRefreshToken  = errors.New("credential has no refresh token")
)

// TokenResponse is the provider's token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Service performs code exchange and token refresh against configured
// providers. Plaintext access tokens live only in a process-local TTL cache;
// everything persisted goes through the vault.
type Service struct {
	providers   map[models.CredentialType]Provider
	vault       *vault.Vault
	persistence persistence.Persistence
	cache       *gocache.Cache
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the token service.
func NewService(
	providers []Provider,
	credentialVault *vault.Vault,
	store persistence.Persistence,
	logger *slog.Logger,
) *Service {
	providerMap := make(map[models.CredentialType]Provider, len(providers))
	for _, provider := range providers {
		providerMap[provider.Type] = provider
	}

	return &Service{
		providers:   providerMap,
		vault:       credentialVault,
		persistence: store,
		cache:       gocache.New(gocache.NoExpiration, 5*time.Minute),
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      logger.With("module", "oauth"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now

	return s
}

// Provider returns the configured provider for a credential type.
func (s *Service) Provider(credentialType models.CredentialType) (Provider, error) {
	provider, ok := s.providers[credentialType]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, credentialType)
	}

	return provider, nil
}

// Exchange trades an authorization code for tokens at the provider's token
// endpoint.
func (s *Service) Exchange(ctx context.Context, credentialType models.CredentialType, code, redirectURI string) (*TokenResponse, error) {
	provider, err := s.Provider(credentialType)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", provider.ClientID)
	form.Set("client_secret", provider.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	return s.tokenRequest(ctx, provider, form)
}

// StoreTokens encrypts the exchanged tokens and upserts the credential.
// Passing an existing credential ID reconnects that credential instead of
// creating a new one.
func (s *Service) StoreTokens(ctx context.Context, userID, credentialID string, credentialType models.CredentialType, tokens *TokenResponse) (*models.Credential, error) {
	encryptedAccess, err := s.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	credential := &models.Credential{
		ID:             credentialID,
		Owner:          userID,
		Type:           credentialType,
		EncryptedValue: encryptedAccess,
	}

	if credentialID != "" {
		existing, err := s.persistence.CredentialByID(ctx, credentialID)
		if err == nil {
			credential.CreatedAt = existing.CreatedAt

			if tokens.RefreshToken == "" {
				credential.EncryptedRefreshToken = existing.EncryptedRefreshToken
			}
		}
	}

	if tokens.RefreshToken != "" {
		encryptedRefresh, err := s.vault.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}

		credential.EncryptedRefreshToken = encryptedRefresh
	}

	if tokens.ExpiresIn > 0 {
		expiresAt := s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
		credential.ExpiresAt = &expiresAt
	}

	err = s.persistence.SaveCredential(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	s.cacheToken(credential.ID, tokens.AccessToken, credential.ExpiresAt)

	return credential, nil
}

// AccessToken returns a valid plaintext access token for the credential,
// refreshing it first when expiry is within the skew window.
func (s *Service) AccessToken(ctx context.Context, credentialID string) (string, error) {
	if cached, found := s.cache.Get(credentialID); found {
		if token, ok := cached.(string); ok {
			return token, nil
		}
	}

	credential, err := s.persistence.CredentialByID(ctx, credentialID)
	if err != nil {
		return "", fmt.Errorf("failed to load credential %s: %w", credentialID, err)
	}

	if credential.Expired(s.now(), RefreshSkew) {
		credential, err = s.refresh(ctx, credential)
		if err != nil {
			return "", err
		}
	}

	token, err := s.vault.Decrypt(credential.EncryptedValue)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}

	s.cacheToken(credential.ID, token, credential.ExpiresAt)

	return token, nil
}

// refresh rotates the access token using the stored refresh token, persists
// the re-encrypted result with its new expiry and returns the updated
// credential.
func (s *Service) refresh(ctx context.Context, credential *models.Credential) (*models.Credential, error) {
	if credential.EncryptedRefreshToken == "" {
		return nil, fmt.Errorf("cannot refresh credential %s: %w", credential.ID, ErrNoRefreshToken)
	}

	provider, err := s.Provider(credential.Type)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.vault.Decrypt(credential.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", provider.ClientID)
	form.Set("client_secret", provider.ClientSecret)

	tokens, err := s.tokenRequest(ctx, provider, form)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token for credential %s: %w", credential.ID, err)
	}

	s.logger.InfoContext(ctx, "Rotated access token",
		"credential_id", credential.ID,
		"provider", credential.Type)

	return s.StoreTokens(ctx, credential.Owner, credential.ID, credential.Type, tokens)
}

func (s *Service) tokenRequest(ctx context.Context, provider Provider, form url.Values) (*TokenResponse, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}

	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", response.StatusCode)
	}

	var tokens TokenResponse

	err = json.Unmarshal(body, &tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokens.Error != "" {
		return nil, fmt.Errorf("token endpoint error: %s", tokens.Error)
	}

	if tokens.AccessToken == "" {
		return nil, errors.New("token endpoint returned no access token")
	}

	return &tokens, nil
}

// cacheToken keeps the plaintext token until it enters the refresh window.
func (s *Service) cacheToken(credentialID, token string, expiresAt *time.Time) {
	if expiresAt == nil {
		s.cache.Set(credentialID, token, gocache.NoExpiration)

		return
	}

	ttl := expiresAt.Sub(s.now()) - RefreshSkew
	if ttl <= 0 {
		return
	}

	s.cache.Set(credentialID, token, ttl)
}
