package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key derivation labels. Each cookie or store concern gets its own key so a
// leak of one does not let an attacker forge the others.
const (
	PurposeSessionToken = "customer-auth session token v1"
	PurposeAuthState    = "customer-auth authorization state v1"
	PurposeStoreValues  = "customer-auth store values v1"
	PurposeIDTokenSeal  = "customer-auth session id token v1"
)

// MinSecretLength is the minimum accepted length of a master secret
const MinSecretLength = 32

// DeriveKey derives a 32-byte key for purpose from secret using HKDF-SHA256
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
