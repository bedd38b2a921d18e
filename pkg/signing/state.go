package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// stateKeyNamespace separates the state-signing key derivation from the
// vault's key derivation, so compromise of one key does not trivially
// compromise the other.
const stateKeyNamespace = "loom.oauth.state.v1"

const minStateSecretLength = 32

var (
	// ErrInvalidStateToken indicates a token that is malformed or whose
	// signature does not verify.
	ErrInvalidStateToken = errors.New("invalid state token")

	// ErrStateExpired indicates a verified token whose expiry has passed.
	ErrStateExpired = errors.New("state token expired")

	errStateSecretTooShort = fmt.Errorf("state signing secret must be at least %d characters", minStateSecretLength)
)

// StatePayload is the data carried across an OAuth redirect without
// server-side session storage.
type StatePayload struct {
	UserID       string `json:"user_id"`
	CredentialID string `json:"credential_id,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// StateSigner produces and verifies signed opaque state tokens of the form
// base64url(json payload).base64url(HMAC-SHA256(payload)).
type StateSigner struct {
	key []byte
	now func() time.Time
}

// NewStateSigner derives the signing key from the master secret, namespaced
// for state tokens.
func NewStateSigner(masterSecret string) (*StateSigner, error) {
	if len(masterSecret) < minStateSecretLength {
		return nil, errStateSecretTooShort
	}

	mac := hmac.New(sha256.New, []byte(masterSecret))
	mac.Write([]byte(stateKeyNamespace))

	return &StateSigner{key: mac.Sum(nil), now: time.Now}, nil
}

// CreateSignedState serializes the payload with the given TTL and signs it.
func (s *StateSigner) CreateSignedState(userID, credentialID string, ttl time.Duration) (string, error) {
	payload := StatePayload{
		UserID:       userID,
		CredentialID: credentialID,
		ExpiresAt:    s.now().Add(ttl).Unix(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state payload: %w", err)
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(raw)

	encode := base64.RawURLEncoding.EncodeToString

	return encode(raw) + "." + encode(mac.Sum(nil)), nil
}

// VerifySignedState checks the token's HMAC in constant time and only then
// parses the payload. Expiry is checked after verification.
func (s *StateSigner) VerifySignedState(token string) (*StatePayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidStateToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidStateToken
	}

	providedMAC, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidStateToken
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(raw)

	if !hmac.Equal(providedMAC, mac.Sum(nil)) {
		return nil, ErrInvalidStateToken
	}

	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidStateToken
	}

	if s.now().Unix() > payload.ExpiresAt {
		return nil, ErrStateExpired
	}

	return &payload, nil
}
