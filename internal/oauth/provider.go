package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// Flow selects the grant sequence run against a provider. One flow is chosen
// per deployment; the two are never mixed because they disagree on which
// token is later used against the customer API.
type Flow string

const (
	// FlowTokenExchange exchanges the code, then trades the first-leg access
	// token for a delegated customer-API token (RFC 8693).
	FlowTokenExchange Flow = "token_exchange"
	// FlowPKCE exchanges the code with a PKCE verifier and uses the first-leg
	// access token directly.
	FlowPKCE Flow = "pkce"
)

// Wire constants.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken       = "urn:ietf:params:oauth:token-type:access_token"

	DefaultRequestIDHeader = "X-Request-Id"
)

// Shopify customer account defaults.
const (
	ShopifyBaseURL          = "https://shopify.com"
	ShopifyAPIVersion       = "2024-07"
	ShopifyCustomerAudience = "30243aa5-17c1-465a-8493-944bcc4e88aa"
	ShopifyCustomerAPIScope = "https://api.customers.com/auth/customer.graphql"
)

// Provider describes an identity provider as plain data. The Engine, the
// profile fetcher and the session manager all read from it; nothing
// dispatches on the provider's identity.
type Provider struct {
	ID   string
	Name string

	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthorizeURL string
	TokenURL     string
	LogoutURL    string
	APIURL       string
	// Issuer is the expected "iss" of ID tokens; used only when ID token
	// verification is enabled.
	Issuer string

	Scopes []string
	Flow   Flow

	// Token exchange leg
	Audience      string
	ExchangeScope string

	// RequestIDHeader names the provider's tracing header, X-Request-Id by default.
	RequestIDHeader string
}

// Validate checks that every value needed by the configured flow is present.
func (p *Provider) Validate() error {
	required := []struct {
		field, value string
	}{
		{"clientId", p.ClientID},
		{"clientSecret", p.ClientSecret},
		{"redirectUrl", p.RedirectURL},
		{"authorizeUrl", p.AuthorizeURL},
		{"tokenUrl", p.TokenURL},
		{"apiUrl", p.APIURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return newConfigError(r.field, "is required")
		}
	}

	for _, u := range []struct{ field, value string }{
		{"redirectUrl", p.RedirectURL},
		{"authorizeUrl", p.AuthorizeURL},
		{"tokenUrl", p.TokenURL},
		{"apiUrl", p.APIURL},
		{"logoutUrl", p.LogoutURL},
	} {
		if u.value == "" {
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return newConfigError(u.field, fmt.Sprintf("must be an absolute URL, got %q", u.value))
		}
	}

	switch p.Flow {
	case FlowTokenExchange:
		if p.Audience == "" {
			return newConfigError("audience", "is required for the token_exchange flow")
		}
	case FlowPKCE:
	default:
		return newConfigError("flow", fmt.Sprintf("must be %q or %q, got %q", FlowTokenExchange, FlowPKCE, p.Flow))
	}
	return nil
}

// UsesPKCE reports whether authorization requests carry a code challenge.
func (p *Provider) UsesPKCE() bool {
	return p.Flow == FlowPKCE
}

func (p *Provider) requestIDHeader() string {
	if p.RequestIDHeader != "" {
		return p.RequestIDHeader
	}
	return DefaultRequestIDHeader
}

func (p *Provider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthorizeURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// ShopifyOptions configures ShopifyCustomerAccount.
type ShopifyOptions struct {
	ShopID       string
	APIVersion   string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Flow         Flow
	// BaseURL overrides https://shopify.com, for tests and proxies.
	BaseURL string
}

// ShopifyCustomerAccount returns the Provider for Shopify's customer account API.
func ShopifyCustomerAccount(opts ShopifyOptions) (Provider, error) {
	if strings.TrimSpace(opts.ShopID) == "" {
		return Provider{}, newConfigError("shopId", "is required")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = ShopifyAPIVersion
	}
	if opts.BaseURL == "" {
		opts.BaseURL = ShopifyBaseURL
	}
	if opts.Flow == "" {
		opts.Flow = FlowTokenExchange
	}

	endpoint := func(elem ...string) (string, error) {
		u, err := url.JoinPath(opts.BaseURL, append([]string{opts.ShopID}, elem...)...)
		if err != nil {
			return "", newConfigError("baseUrl", err.Error())
		}
		return u, nil
	}

	p := Provider{
		ID:              "shopify",
		Name:            "Shopify",
		ClientID:        opts.ClientID,
		ClientSecret:    opts.ClientSecret,
		RedirectURL:     opts.RedirectURL,
		Scopes:          []string{"openid", "email", ShopifyCustomerAPIScope},
		Flow:            opts.Flow,
		Audience:        ShopifyCustomerAudience,
		ExchangeScope:   ShopifyCustomerAPIScope,
		RequestIDHeader: DefaultRequestIDHeader,
	}

	var err error
	if p.AuthorizeURL, err = endpoint("auth", "oauth", "authorize"); err != nil {
		return Provider{}, err
	}
	if p.TokenURL, err = endpoint("auth", "oauth", "token"); err != nil {
		return Provider{}, err
	}
	if p.LogoutURL, err = endpoint("auth", "logout"); err != nil {
		return Provider{}, err
	}
	if p.APIURL, err = endpoint("account", "customer", "api", opts.APIVersion, "graphql"); err != nil {
		return Provider{}, err
	}
	if p.Issuer, err = url.JoinPath(opts.BaseURL, "authentication", opts.ShopID); err != nil {
		return Provider{}, newConfigError("baseUrl", err.Error())
	}

	if err := p.Validate(); err != nil {
		return Provider{}, err
	}
	return p, nil
}
