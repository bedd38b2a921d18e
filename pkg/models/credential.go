package models

import "time"

// CredentialType enumerates the supported third-party providers.
type CredentialType string

const (
	CredentialTypeGitHub CredentialType = "github"
	CredentialTypeGoogle CredentialType = "google"
	CredentialTypeSlack  CredentialType = "slack"
)

// Credential stores an encrypted secret for a provider. Values are decrypted
// only transiently in memory at point of use.
type Credential struct {
	ID                    string         `json:"id"`
	Owner                 string         `json:"owner" validate:"required"`
	Type                  CredentialType `json:"type"  validate:"required"`
	EncryptedValue        string         `json:"-"`
	EncryptedRefreshToken string         `json:"-"`
	ExpiresAt             *time.Time     `json:"expires_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Expired reports whether the access token expires within the given skew.
func (c *Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}

	return !now.Add(skew).Before(*c.ExpiresAt)
}
