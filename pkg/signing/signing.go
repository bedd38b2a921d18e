// Package signing provides the HMAC primitives used to authenticate webhook
// deliveries and to carry tamper-evident state across OAuth redirects.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme prefix expected on webhook signatures.
const SignaturePrefix = "sha256="

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret, with the
// scheme prefix attached.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the HMAC over the raw payload bytes and compares
// it against the provided signature in constant time. Malformed signatures
// yield false, never an error.
func VerifySignature(payload []byte, providedSignature, secret string) bool {
	if !strings.HasPrefix(providedSignature, SignaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(providedSignature, SignaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hmac.Equal(provided, mac.Sum(nil))
}

// VerifySharedSecret compares two secrets in constant time. Both operands are
// padded to equal length before comparison so a length difference is not
// leaked through an early mismatch. Empty input always fails.
func VerifySharedSecret(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}

	size := len(provided)
	if len(expected) > size {
		size = len(expected)
	}

	paddedProvided := make([]byte, size)
	copy(paddedProvided, provided)

	paddedExpected := make([]byte, size)
	copy(paddedExpected, expected)

	lengthsEqual := subtle.ConstantTimeEq(int32(len(provided)), int32(len(expected)))
	contentsEqual := subtle.ConstantTimeCompare(paddedProvided, paddedExpected)

	return lengthsEqual&contentsEqual == 1
}
