package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateSecureToken creates a cryptographically secure random token.
// Returns an unpadded base64 URL-encoded string suitable for OAuth state and
// nonce parameters, session identifiers and similar one-time values.
func GenerateSecureToken() (string, error) {
	return GenerateSecureTokenSize(32)
}

// GenerateSecureTokenSize is GenerateSecureToken with a caller-chosen number
// of random bytes.
func GenerateSecureTokenSize(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token size must be at least 16 bytes, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
