package signing_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/signing"
)

const testMasterSecret = "0123456789abcdef0123456789abcdef"

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event":"push","ref":"main"}`)
	secret := "webhook-secret"
	signature := signing.Sign(payload, secret)

	assert.True(t, signing.VerifySignature(payload, signature, secret))

	// Any payload byte change yields false.
	tampered := []byte(`{"event":"push","ref":"dev!"}`)
	assert.False(t, signing.VerifySignature(tampered, signature, secret))

	// Wrong secret yields false.
	assert.False(t, signing.VerifySignature(payload, signature, "other-secret"))
}

func TestVerifySignature_MalformedInput(t *testing.T) {
	t.Parallel()

	payload := []byte("data")

	assert.False(t, signing.VerifySignature(payload, "", "secret"))
	assert.False(t, signing.VerifySignature(payload, "md5=abcdef", "secret"))
	assert.False(t, signing.VerifySignature(payload, "sha256=not-hex!", "secret"))
	assert.False(t, signing.VerifySignature(payload, "sha256=", "secret"))
}

func TestVerifySharedSecret(t *testing.T) {
	t.Parallel()

	assert.True(t, signing.VerifySharedSecret("s3cret", "s3cret"))
	assert.False(t, signing.VerifySharedSecret("s3cret", "other"))
	assert.False(t, signing.VerifySharedSecret("s3cre", "s3cret"))
	assert.False(t, signing.VerifySharedSecret("s3cret-with-suffix", "s3cret"))
	assert.False(t, signing.VerifySharedSecret("", "s3cret"))
	assert.False(t, signing.VerifySharedSecret("s3cret", ""))
	assert.False(t, signing.VerifySharedSecret("", ""))
}

func TestSignedState_RoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := signing.NewStateSigner(testMasterSecret)
	require.NoError(t, err)

	token, err := signer.CreateSignedState("user-1", "cred-9", 5*time.Minute)
	require.NoError(t, err)

	payload, err := signer.VerifySignedState(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, "cred-9", payload.CredentialID)
	assert.Positive(t, payload.ExpiresAt)
}

func TestSignedState_Tampered(t *testing.T) {
	t.Parallel()

	signer, err := signing.NewStateSigner(testMasterSecret)
	require.NoError(t, err)

	token, err := signer.CreateSignedState("user-1", "", 5*time.Minute)
	require.NoError(t, err)

	// Flip a character in the payload part.
	parts := strings.SplitN(token, ".", 2)
	payload := []byte(parts[0])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}

	_, err = signer.VerifySignedState(string(payload) + "." + parts[1])
	require.ErrorIs(t, err, signing.ErrInvalidStateToken)
}

func TestSignedState_Malformed(t *testing.T) {
	t.Parallel()

	signer, err := signing.NewStateSigner(testMasterSecret)
	require.NoError(t, err)

	for _, token := range []string{"", "nodot", "a.b.c", "!!!.AAAA"} {
		_, err := signer.VerifySignedState(token)
		require.ErrorIs(t, err, signing.ErrInvalidStateToken, "token %q", token)
	}
}

func TestSignedState_Expired(t *testing.T) {
	t.Parallel()

	signer, err := signing.NewStateSigner(testMasterSecret)
	require.NoError(t, err)

	token, err := signer.CreateSignedState("user-1", "", -1*time.Minute)
	require.NoError(t, err)

	_, err = signer.VerifySignedState(token)
	require.ErrorIs(t, err, signing.ErrStateExpired)
}

func TestSignedState_DistinctKeysPerSecret(t *testing.T) {
	t.Parallel()

	signer, err := signing.NewStateSigner(testMasterSecret)
	require.NoError(t, err)

	other, err := signing.NewStateSigner("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	token, err := signer.CreateSignedState("user-1", "", 5*time.Minute)
	require.NoError(t, err)

	_, err = other.VerifySignedState(token)
	require.ErrorIs(t, err, signing.ErrInvalidStateToken)
}
