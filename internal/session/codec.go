package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/customer-auth/internal/crypto"
	"github.com/dgellow/customer-auth/internal/profile"
	"github.com/golang-jwt/jwt/v5"
)

// claims is the cookie payload. Expiry is carried in exp but checked only by
// Manager.Validate, so that an expired cookie surfaces as ExpiredError
// rather than a signature failure.
type claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`

	// SealedIDToken is the provider ID token, encrypted. JWT payloads are
	// only encoded, and the ID token must not be readable from the cookie.
	SealedIDToken string `json:"sit,omitempty"`
}

// Codec turns records into tamper-evident cookie values (HS256 JWT)
type Codec struct {
	key    []byte
	issuer string
	sealer crypto.Encryptor
}

// NewCodec creates a codec signing with key, which must be at least 32 bytes.
// The ID token is sealed with a key derived from it.
func NewCodec(key []byte, issuer string) (*Codec, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("session signing key must be at least 32 bytes, got %d", len(key))
	}
	sealKey, err := crypto.DeriveKey(key, crypto.PurposeIDTokenSeal)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewEncryptor(sealKey)
	if err != nil {
		return nil, err
	}
	return &Codec{key: key, issuer: issuer, sealer: sealer}, nil
}

// Encode signs rec
func (c *Codec) Encode(rec *Record) (string, error) {
	var sealed string
	if rec.IDToken != "" {
		var err error
		if sealed, err = c.sealer.Encrypt(rec.IDToken); err != nil {
			return "", fmt.Errorf("sealing id token: %w", err)
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ID,
			Issuer:    c.issuer,
			Subject:   rec.Identity.ID,
			ExpiresAt: jwt.NewNumericDate(rec.Expiry()),
		},
		Name:          rec.Identity.Name,
		Email:         rec.Identity.Email,
		SealedIDToken: sealed,
	})
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and returns the record without judging expiry
func (c *Codec) Decode(value string) (*Record, error) {
	if value == "" {
		return nil, ErrNoSession
	}

	var cl claims
	_, err := jwt.ParseWithClaims(value, &cl, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if c.issuer != "" && cl.Issuer != c.issuer {
		return nil, fmt.Errorf("invalid session token: unexpected issuer %q", cl.Issuer)
	}
	if cl.ID == "" || cl.ExpiresAt == nil {
		return nil, errors.New("invalid session token: missing claims")
	}
	var idToken string
	if cl.SealedIDToken != "" {
		if idToken, err = c.sealer.Decrypt(cl.SealedIDToken); err != nil {
			return nil, fmt.Errorf("invalid session token: %w", err)
		}
	}

	return &Record{
		ID: cl.ID,
		Identity: profile.Identity{
			ID:    cl.Subject,
			Name:  cl.Name,
			Email: cl.Email,
		},
		IDToken:   idToken,
		ExpiresAt: cl.ExpiresAt.Time.Unix(),
	}, nil
}

// MaxAge is the cookie lifetime left for rec
func MaxAge(rec *Record, now time.Time) time.Duration {
	d := rec.Expiry().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
