// Package profile fetches the signed-in customer from the provider's
// GraphQL customer API and maps it to a canonical identity.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgellow/customer-auth/internal/httpclient"
	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/oauth"
)

// CustomerQuery selects the fields mapped into Identity.
const CustomerQuery = `query getCustomerForSession {
  customer {
    id
    displayName
    emailAddress {
      emailAddress
    }
  }
}`

const operationName = "GetCustomerForSession"

// Identity is the canonical customer record the rest of the service depends on.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data *struct {
		Customer *customer `json:"customer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type customer struct {
	ID           *string `json:"id"`
	DisplayName  *string `json:"displayName"`
	EmailAddress *struct {
		EmailAddress *string `json:"emailAddress"`
	} `json:"emailAddress"`
}

// Fetcher queries the customer API.
type Fetcher struct {
	apiURL          string
	requestIDHeader string
	client          oauth.Doer
}

// NewFetcher creates a Fetcher for p's customer API.
func NewFetcher(p *oauth.Provider, client oauth.Doer) (*Fetcher, error) {
	if p.APIURL == "" {
		return nil, &oauth.ConfigurationError{Field: "apiUrl", Message: "is required"}
	}
	if client == nil {
		return nil, &oauth.ConfigurationError{Message: "http client is required"}
	}
	return &Fetcher{
		apiURL:          p.APIURL,
		requestIDHeader: p.RequestIDHeader,
		client:          client,
	}, nil
}

// FetchIdentity returns the customer behind accessToken. Any field absent
// from the response is an error; nothing is defaulted.
func (f *Fetcher) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, &oauth.MissingTokenError{Token: "access token"}
	}

	body, err := json.Marshal(graphqlRequest{
		OperationName: operationName,
		Query:         CustomerQuery,
		Variables:     map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding customer query: %w", err)
	}

	resp, err := f.client.Do(ctx, &httpclient.Request{
		Operation: oauth.OperationProfile,
		Method:    http.MethodPost,
		URL:       f.apiURL,
		Header: http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json"},
			// The customer API takes the raw token, without a Bearer prefix.
			"Authorization": {accessToken},
		},
		Body: body,
	})
	if err != nil {
		return nil, oauth.TransportError(oauth.OperationProfile, err)
	}
	if !resp.OK() {
		return nil, oauth.NewProviderRequestError(oauth.OperationProfile, resp, f.requestIDHeader)
	}

	var gql graphqlResponse
	if err := json.Unmarshal(resp.Body, &gql); err != nil {
		return nil, malformed("", err)
	}
	if len(gql.Errors) > 0 {
		messages := make([]string, 0, len(gql.Errors))
		for _, e := range gql.Errors {
			messages = append(messages, e.Message)
		}
		return nil, malformed("", errors.New(strings.Join(messages, "; ")))
	}

	identity, err := toIdentity(gql)
	if err != nil {
		return nil, err
	}

	log.LogDebugWithFields("profile", "Fetched customer identity", map[string]any{
		"customer_id": identity.ID,
	})
	return identity, nil
}

func toIdentity(gql graphqlResponse) (*Identity, error) {
	if gql.Data == nil {
		return nil, malformed("data", nil)
	}
	c := gql.Data.Customer
	switch {
	case c == nil:
		return nil, malformed("customer", nil)
	case c.ID == nil || *c.ID == "":
		return nil, malformed("customer.id", nil)
	case c.DisplayName == nil:
		return nil, malformed("customer.displayName", nil)
	case c.EmailAddress == nil || c.EmailAddress.EmailAddress == nil:
		return nil, malformed("customer.emailAddress.emailAddress", nil)
	}
	return &Identity{
		ID:    *c.ID,
		Name:  *c.DisplayName,
		Email: *c.EmailAddress.EmailAddress,
	}, nil
}

func malformed(field string, err error) *oauth.MalformedResponseError {
	return &oauth.MalformedResponseError{Operation: oauth.OperationProfile, Field: field, Err: err}
}
