// Package vault provides symmetric encryption for stored credential secrets.
//
// Secrets are sealed with AES-256-GCM using a key derived from the configured
// master secret. The envelope format is
// base64url(iv):base64url(tag):base64url(ciphertext) with a random 16-byte IV
// per call and a 16-byte authentication tag.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// MinMasterSecretLength is the minimum accepted master secret length.
	MinMasterSecretLength = 32

	ivSize  = 16
	tagSize = 16
)

var (
	// ErrMasterSecretTooShort indicates the configured master secret is absent
	// or shorter than MinMasterSecretLength characters.
	ErrMasterSecretTooShort = fmt.Errorf("master secret must be at least %d characters", MinMasterSecretLength)

	// ErrEmptyPlaintext indicates Encrypt was called with empty input.
	ErrEmptyPlaintext = errors.New("cannot encrypt empty plaintext")
)

// InvalidEnvelopeError indicates a ciphertext envelope that is malformed,
// tampered with, or sealed under a different key.
type InvalidEnvelopeError struct {
	Reason string
}

func (e *InvalidEnvelopeError) Error() string {
	return "invalid ciphertext envelope: " + e.Reason
}

// Vault encrypts and decrypts credential values. It is stateless and safe for
// concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from the master secret and returns a ready vault.
// Fails fast when the secret is absent or too short.
func New(masterSecret string) (*Vault, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, ErrMasterSecretTooShort
	}

	key := sha256.Sum256([]byte(masterSecret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals the plaintext into an envelope string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	// Seal appends the authentication tag to the ciphertext.
	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	encode := base64.RawURLEncoding.EncodeToString

	return encode(iv) + ":" + encode(tag) + ":" + encode(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. It fails with
// InvalidEnvelopeError when the envelope does not split into exactly three
// parts, when the IV or tag lengths mismatch, or when the integrity tag fails
// to verify.
func (v *Vault) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", &InvalidEnvelopeError{Reason: "expected 3 parts, got " + fmt.Sprint(len(parts))}
	}

	iv, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", &InvalidEnvelopeError{Reason: "malformed IV encoding"}
	}

	tag, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", &InvalidEnvelopeError{Reason: "malformed tag encoding"}
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", &InvalidEnvelopeError{Reason: "malformed ciphertext encoding"}
	}

	if len(iv) != ivSize {
		return "", &InvalidEnvelopeError{Reason: "IV length mismatch"}
	}

	if len(tag) != tagSize {
		return "", &InvalidEnvelopeError{Reason: "tag length mismatch"}
	}

	plaintext, err := v.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", &InvalidEnvelopeError{Reason: "integrity check failed"}
	}

	return string(plaintext), nil
}
