package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgellow/customer-auth/internal/httpclient"
	"github.com/dgellow/customer-auth/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f, err := NewFetcher(&oauth.Provider{APIURL: server.URL + "/graphql"}, httpclient.New())
	require.NoError(t, err)
	return f
}

func TestFetchIdentity(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody graphqlRequest

	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"customer":{"id":"C1","displayName":"Jane Doe","emailAddress":{"emailAddress":"jane@example.com"}}}}`))
	})

	identity, err := f.FetchIdentity(context.Background(), "shcat_token")
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: "C1", Name: "Jane Doe", Email: "jane@example.com"}, identity)

	assert.Equal(t, "shcat_token", gotAuth, "token is sent without a Bearer prefix")
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "GetCustomerForSession", gotBody.OperationName)
	assert.Contains(t, gotBody.Query, "emailAddress")
	assert.NotNil(t, gotBody.Variables)
}

func TestFetchIdentity_EmptyToken(t *testing.T) {
	called := false
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := f.FetchIdentity(context.Background(), "")
	var missing *oauth.MissingTokenError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "access token is missing", err.Error())
	assert.False(t, called)
}

func TestFetchIdentity_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no data", `{}`, "data"},
		{"null customer", `{"data":{"customer":null}}`, "customer"},
		{"no id", `{"data":{"customer":{"displayName":"Jane","emailAddress":{"emailAddress":"j@example.com"}}}}`, "customer.id"},
		{"no display name", `{"data":{"customer":{"id":"C1","emailAddress":{"emailAddress":"j@example.com"}}}}`, "customer.displayName"},
		{"no email object", `{"data":{"customer":{"id":"C1","displayName":"Jane"}}}`, "customer.emailAddress.emailAddress"},
		{"no nested email", `{"data":{"customer":{"id":"C1","displayName":"Jane","emailAddress":{}}}}`, "customer.emailAddress.emailAddress"},
		{"graphql errors", `{"errors":[{"message":"Access denied"}]}`, ""},
		{"not json", `<html></html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			identity, err := f.FetchIdentity(context.Background(), "token")
			assert.Nil(t, identity)
			var malformed *oauth.MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, oauth.OperationProfile, malformed.Operation)
			assert.Equal(t, tt.field, malformed.Field)
			assert.True(t, oauth.IsAuthFailure(err))
		})
	}
}

func TestFetchIdentity_NonSuccessStatus(t *testing.T) {
	t.Run("request id header", func(t *testing.T) {
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-Id", "gql-42")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Unauthorized"))
		})

		_, err := f.FetchIdentity(context.Background(), "token")
		var reqErr *oauth.ProviderRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
		assert.Equal(t, "gql-42", reqErr.RequestID)
		assert.Equal(t, "profile: 401 (RequestID gql-42): Unauthorized", err.Error())
	})

	t.Run("no request id header", func(t *testing.T) {
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := f.FetchIdentity(context.Background(), "token")
		var reqErr *oauth.ProviderRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Empty(t, reqErr.RequestID)
	})
}

func TestNewFetcher_RequiresAPIURL(t *testing.T) {
	_, err := NewFetcher(&oauth.Provider{}, httpclient.New())
	var cfgErr *oauth.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "apiUrl", cfgErr.Field)
}
