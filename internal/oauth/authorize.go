package oauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgellow/customer-auth/internal/crypto"
	"golang.org/x/oauth2"
)

// AuthorizationRequestContext holds the one-time security parameters of a
// single login attempt. The caller persists it until the callback arrives and
// must discard it after first use.
type AuthorizationRequestContext struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	ReturnTo     string    `json:"return_to,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildAuthorizationRequest generates fresh state, nonce and (for PKCE flows)
// a code verifier, and returns the provider redirect URL carrying them.
func BuildAuthorizationRequest(p *Provider) (string, *AuthorizationRequestContext, error) {
	for _, r := range []struct{ field, value string }{
		{"clientId", p.ClientID},
		{"redirectUrl", p.RedirectURL},
		{"authorizeUrl", p.AuthorizeURL},
	} {
		if strings.TrimSpace(r.value) == "" {
			return "", nil, newConfigError(r.field, "is required")
		}
	}

	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", nil, fmt.Errorf("generating state: %w", err)
	}
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", nil, fmt.Errorf("generating nonce: %w", err)
	}

	reqCtx := &AuthorizationRequestContext{
		State:     state,
		Nonce:     nonce,
		CreatedAt: time.Now(),
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
	}
	if p.UsesPKCE() {
		reqCtx.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(reqCtx.CodeVerifier))
	}

	return p.oauth2Config().AuthCodeURL(state, opts...), reqCtx, nil
}
