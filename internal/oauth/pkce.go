package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Code verifier length bounds from RFC 7636 section 4.1
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// VerifyPKCE reports whether challenge is the S256 transform of verifier.
func VerifyPKCE(verifier, challenge string) bool {
	h := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// ValidateCodeVerifier checks a stored verifier before it is sent back to
// the provider. Only unreserved characters are allowed.
func ValidateCodeVerifier(verifier string) error {
	if n := len(verifier); n < minVerifierLength || n > maxVerifierLength {
		return fmt.Errorf("code verifier must be %d-%d characters, got %d", minVerifierLength, maxVerifierLength, n)
	}
	for _, c := range verifier {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return fmt.Errorf("code verifier contains invalid character %q", c)
		}
	}
	return nil
}
