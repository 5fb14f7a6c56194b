package oauth

import (
	"context"
	"crypto"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IDTokenClaims are the ID token claims the login flow cares about.
type IDTokenClaims struct {
	Subject   string
	Email     string
	Nonce     string
	ExpiresAt time.Time
}

// IDTokenVerifier checks signature, issuer, audience, expiry and nonce of a
// provider ID token.
type IDTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewIDTokenVerifier discovers the provider's JWKS from its issuer.
func NewIDTokenVerifier(ctx context.Context, p *Provider) (*IDTokenVerifier, error) {
	if p.Issuer == "" {
		return nil, newConfigError("issuer", "is required to verify ID tokens")
	}
	oidcProvider, err := oidc.NewProvider(ctx, p.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", p.Issuer, err)
	}
	return &IDTokenVerifier{
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: p.ClientID}),
	}, nil
}

// NewStaticIDTokenVerifier verifies against fixed public keys instead of a
// discovered JWKS. now may be nil.
func NewStaticIDTokenVerifier(p *Provider, now func() time.Time, keys ...crypto.PublicKey) *IDTokenVerifier {
	return &IDTokenVerifier{
		verifier: oidc.NewVerifier(p.Issuer, &oidc.StaticKeySet{PublicKeys: keys}, &oidc.Config{
			ClientID: p.ClientID,
			Now:      now,
		}),
	}
}

// Verify validates rawIDToken and requires its nonce claim to equal nonce.
func (v *IDTokenVerifier) Verify(ctx context.Context, rawIDToken, nonce string) (*IDTokenClaims, error) {
	if rawIDToken == "" {
		return nil, &MalformedResponseError{Operation: OperationIDToken, Field: "id_token"}
	}
	if nonce == "" {
		return nil, &MissingTokenError{Token: "nonce"}
	}

	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &MalformedResponseError{Operation: OperationIDToken, Err: err}
	}
	if subtle.ConstantTimeCompare([]byte(token.Nonce), []byte(nonce)) != 1 {
		return nil, &MalformedResponseError{Operation: OperationIDToken, Field: "nonce", Err: errors.New("nonce mismatch")}
	}

	var extra struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, &MalformedResponseError{Operation: OperationIDToken, Err: err}
	}

	return &IDTokenClaims{
		Subject:   token.Subject,
		Email:     extra.Email,
		Nonce:     token.Nonce,
		ExpiresAt: token.Expiry,
	}, nil
}
