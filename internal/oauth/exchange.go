package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dgellow/customer-auth/internal/httpclient"
	"github.com/dgellow/customer-auth/internal/ioutil"
	"github.com/dgellow/customer-auth/internal/log"
)

// Operation names used in errors, logs and metrics.
const (
	OperationAuthorizationCode = "authorization_code"
	OperationTokenExchange     = "token_exchange"
	OperationProfile           = "profile"
	OperationLogout            = "logout"
	OperationIDToken           = "id_token"
)

// Doer sends one provider request. *httpclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// ExchangeTokenResponse is the first-leg result of the authorization code exchange.
type ExchangeTokenResponse struct {
	AccessToken  string
	ExpiresIn    int64 // seconds
	IDToken      string
	RefreshToken string
}

// DelegatedAccessToken is the token used against the customer API.
type DelegatedAccessToken struct {
	AccessToken string
	ExpiresIn   int64 // seconds, zero when the provider did not say
}

// TokenSet is the outcome of a provider's full grant sequence.
type TokenSet struct {
	Initial   ExchangeTokenResponse
	Delegated DelegatedAccessToken
	// Claims is set when the ID token was verified.
	Claims *IDTokenClaims
}

// tokenPayload is the union of success and error fields a token endpoint may return.
type tokenPayload struct {
	AccessToken      string    `json:"access_token"`
	ExpiresIn        int64     `json:"expires_in"`
	IDToken          string    `json:"id_token"`
	RefreshToken     string    `json:"refresh_token"`
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description"`
}

// Engine drives the token endpoint legs of a provider's grant sequence.
type Engine struct {
	provider Provider
	client   Doer
	verifier *IDTokenVerifier
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIDTokenVerifier makes Exchange verify the first-leg ID token and its nonce.
func WithIDTokenVerifier(v *IDTokenVerifier) EngineOption {
	return func(e *Engine) {
		e.verifier = v
	}
}

// NewEngine validates the provider and returns an Engine sending through client.
func NewEngine(p Provider, client Doer, opts ...EngineOption) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, newConfigError("", "http client is required")
	}
	e := &Engine{provider: p, client: client}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Provider returns the provider the engine talks to.
func (e *Engine) Provider() *Provider {
	return &e.provider
}

// Exchange runs the configured grant sequence for code. The token_exchange
// flow performs both legs; the pkce flow uses the first-leg access token as
// the delegated token.
func (e *Engine) Exchange(ctx context.Context, code string, reqCtx *AuthorizationRequestContext) (*TokenSet, error) {
	initial, err := e.ExchangeAuthorizationCode(ctx, code, reqCtx)
	if err != nil {
		return nil, err
	}

	set := &TokenSet{Initial: *initial}

	if e.verifier != nil {
		nonce := ""
		if reqCtx != nil {
			nonce = reqCtx.Nonce
		}
		claims, err := e.verifier.Verify(ctx, initial.IDToken, nonce)
		if err != nil {
			return nil, err
		}
		set.Claims = claims
	}

	switch e.provider.Flow {
	case FlowPKCE:
		set.Delegated = DelegatedAccessToken{
			AccessToken: initial.AccessToken,
			ExpiresIn:   initial.ExpiresIn,
		}
	default:
		delegated, err := e.ExchangeForDelegatedToken(ctx, initial.AccessToken)
		if err != nil {
			return nil, err
		}
		set.Delegated = *delegated
	}

	return set, nil
}

// ExchangeAuthorizationCode trades an authorization code for the first-leg tokens.
func (e *Engine) ExchangeAuthorizationCode(ctx context.Context, code string, reqCtx *AuthorizationRequestContext) (*ExchangeTokenResponse, error) {
	if code == "" {
		return nil, &MissingTokenError{Token: "authorization code"}
	}

	form := url.Values{
		"grant_type":   {GrantTypeAuthorizationCode},
		"client_id":    {e.provider.ClientID},
		"redirect_uri": {e.provider.RedirectURL},
		"code":         {code},
	}
	if e.provider.UsesPKCE() {
		if reqCtx == nil || reqCtx.CodeVerifier == "" {
			return nil, &MissingTokenError{Token: "code verifier"}
		}
		if err := ValidateCodeVerifier(reqCtx.CodeVerifier); err != nil {
			return nil, err
		}
		form.Set("code_verifier", reqCtx.CodeVerifier)
	}

	payload, err := e.postToken(ctx, OperationAuthorizationCode, form)
	if err != nil {
		return nil, err
	}

	log.LogDebugWithFields("oauth", "Authorization code exchanged", map[string]any{
		"provider":     e.provider.ID,
		"expires_in":   payload.ExpiresIn,
		"has_id_token": payload.IDToken != "",
	})

	return &ExchangeTokenResponse{
		AccessToken:  payload.AccessToken,
		ExpiresIn:    payload.ExpiresIn,
		IDToken:      payload.IDToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

// ExchangeForDelegatedToken trades subjectToken for a customer-API token (RFC 8693).
func (e *Engine) ExchangeForDelegatedToken(ctx context.Context, subjectToken string) (*DelegatedAccessToken, error) {
	if subjectToken == "" {
		return nil, &MissingTokenError{Token: "subject token"}
	}

	form := url.Values{
		"grant_type":         {GrantTypeTokenExchange},
		"client_id":          {e.provider.ClientID},
		"subject_token":      {subjectToken},
		"audience":           {e.provider.Audience},
		"subject_token_type": {TokenTypeAccessToken},
	}
	if e.provider.ExchangeScope != "" {
		form.Set("scope", e.provider.ExchangeScope)
	}

	payload, err := e.postToken(ctx, OperationTokenExchange, form)
	if err != nil {
		return nil, err
	}

	log.LogDebugWithFields("oauth", "Delegated token obtained", map[string]any{
		"provider":   e.provider.ID,
		"expires_in": payload.ExpiresIn,
	})

	return &DelegatedAccessToken{
		AccessToken: payload.AccessToken,
		ExpiresIn:   payload.ExpiresIn,
	}, nil
}

// postToken sends a form to the token endpoint and checks both the HTTP
// status and the payload error field.
func (e *Engine) postToken(ctx context.Context, operation string, form url.Values) (*tokenPayload, error) {
	req := &httpclient.Request{
		Operation: operation,
		Method:    http.MethodPost,
		URL:       e.provider.TokenURL,
		Header: http.Header{
			"Content-Type":  {"application/x-www-form-urlencoded"},
			"Accept":        {"application/json"},
			"Authorization": {BasicAuth(e.provider.ClientID, e.provider.ClientSecret)},
		},
		Body: []byte(form.Encode()),
	}

	resp, err := e.client.Do(ctx, req)
	if err != nil {
		return nil, TransportError(operation, err)
	}
	if !resp.OK() {
		return nil, NewProviderRequestError(operation, resp, e.provider.requestIDHeader())
	}

	var payload tokenPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, &MalformedResponseError{Operation: operation, Err: err}
	}
	if payload.Error != "" {
		return nil, &ProviderTokenError{Code: payload.Error, Description: payload.ErrorDescription}
	}
	if payload.AccessToken == "" {
		return nil, &MalformedResponseError{Operation: operation, Field: "access_token"}
	}
	return &payload, nil
}

// BasicAuth returns the Authorization header value for client credentials.
func BasicAuth(clientID, clientSecret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+clientSecret))
}

// MaxErrorBody bounds the response body kept in a ProviderRequestError
const MaxErrorBody = 512

// NewProviderRequestError builds the error for a non-2xx provider response.
// RequestID stays empty when the provider sent no tracing header.
func NewProviderRequestError(operation string, resp *httpclient.Response, requestIDHeader string) *ProviderRequestError {
	if requestIDHeader == "" {
		requestIDHeader = DefaultRequestIDHeader
	}
	return &ProviderRequestError{
		Operation: operation,
		Status:    resp.Status,
		RequestID: resp.Header.Get(requestIDHeader),
		Body:      ioutil.Snippet(resp.Body, MaxErrorBody),
	}
}

// TransportError wraps a failure where no response was received.
func TransportError(operation string, err error) *ProviderRequestError {
	return &ProviderRequestError{
		Operation: operation,
		Err:       fmt.Errorf("no response: %w", err),
	}
}
