// Package secrets provides the random-token and hashing primitives used by
// every credential family in the service.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// DefaultSecretBytes is the entropy of all opaque credentials and CSRF states.
const DefaultSecretBytes = 32

// RandomSecret returns a CSPRNG-sourced hex string of length 2*nBytes.
func RandomSecret(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[RandomSecret] rand.Read")
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns the SHA-256 digest of input as 64 hex characters. It is
// used only to index opaque secrets server-side, never for signing.
func HashSecret(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// CSRFToken returns a one-time state value for the OAuth authorization flow.
func CSRFToken() (string, error) {
	return RandomSecret(DefaultSecretBytes)
}
