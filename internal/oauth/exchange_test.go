package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/customer-auth/internal/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenEndpoint records token requests and answers from handle.
type fakeTokenEndpoint struct {
	calls  atomic.Int32
	mu     sync.Mutex
	forms  []url.Values
	auths  []string
	handle func(w http.ResponseWriter, form url.Values)
}

func (f *fakeTokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.forms = append(f.forms, r.PostForm)
	f.auths = append(f.auths, r.Header.Get("Authorization"))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.handle(w, r.PostForm)
}

func newTestEngine(t *testing.T, flow Flow, handle func(w http.ResponseWriter, form url.Values)) (*Engine, *fakeTokenEndpoint) {
	t.Helper()
	endpoint := &fakeTokenEndpoint{handle: handle}
	server := httptest.NewServer(endpoint)
	t.Cleanup(server.Close)

	engine, err := NewEngine(testProvider(t, server.URL, flow), httpclient.New())
	require.NoError(t, err)
	return engine, endpoint
}

func successfulTokens(w http.ResponseWriter, form url.Values) {
	switch form.Get("grant_type") {
	case GrantTypeAuthorizationCode:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "first-leg-token",
			"expires_in":    3600,
			"id_token":      "id.token.value",
			"refresh_token": "refresh-token",
		})
	case GrantTypeTokenExchange:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "delegated-token",
			"expires_in":   1800,
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func TestExchange_TokenExchangeFlow(t *testing.T) {
	engine, endpoint := newTestEngine(t, FlowTokenExchange, successfulTokens)

	set, err := engine.Exchange(context.Background(), "auth-code", &AuthorizationRequestContext{State: "s", Nonce: "n"})
	require.NoError(t, err)

	assert.Equal(t, "first-leg-token", set.Initial.AccessToken)
	assert.Equal(t, int64(3600), set.Initial.ExpiresIn)
	assert.Equal(t, "id.token.value", set.Initial.IDToken)
	assert.Equal(t, "refresh-token", set.Initial.RefreshToken)
	assert.Equal(t, "delegated-token", set.Delegated.AccessToken)
	assert.Equal(t, int64(1800), set.Delegated.ExpiresIn)
	assert.Nil(t, set.Claims)

	require.EqualValues(t, 2, endpoint.calls.Load())

	first := endpoint.forms[0]
	assert.Equal(t, "authorization_code", first.Get("grant_type"))
	assert.Equal(t, "shp_client", first.Get("client_id"))
	assert.Equal(t, "https://store.example.com/auth/callback", first.Get("redirect_uri"))
	assert.Equal(t, "auth-code", first.Get("code"))
	assert.False(t, first.Has("code_verifier"))

	second := endpoint.forms[1]
	assert.Equal(t, "urn:ietf:params:oauth:grant-type:token-exchange", second.Get("grant_type"))
	assert.Equal(t, "shp_client", second.Get("client_id"))
	assert.Equal(t, "first-leg-token", second.Get("subject_token"))
	assert.Equal(t, "30243aa5-17c1-465a-8493-944bcc4e88aa", second.Get("audience"))
	assert.Equal(t, "urn:ietf:params:oauth:token-type:access_token", second.Get("subject_token_type"))
	assert.Equal(t, "https://api.customers.com/auth/customer.graphql", second.Get("scope"))

	// base64("shp_client:shp_secret")
	for _, auth := range endpoint.auths {
		assert.Equal(t, "Basic c2hwX2NsaWVudDpzaHBfc2VjcmV0", auth)
	}
}

func TestExchange_PKCEFlow(t *testing.T) {
	engine, endpoint := newTestEngine(t, FlowPKCE, successfulTokens)
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	set, err := engine.Exchange(context.Background(), "auth-code", &AuthorizationRequestContext{
		State:        "s",
		Nonce:        "n",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)

	require.EqualValues(t, 1, endpoint.calls.Load(), "pkce flow has no second leg")
	assert.Equal(t, verifier, endpoint.forms[0].Get("code_verifier"))
	assert.Equal(t, "first-leg-token", set.Delegated.AccessToken)
	assert.Equal(t, int64(3600), set.Delegated.ExpiresIn)
}

func TestExchange_PKCEFlowRequiresVerifier(t *testing.T) {
	engine, endpoint := newTestEngine(t, FlowPKCE, successfulTokens)

	_, err := engine.Exchange(context.Background(), "auth-code", &AuthorizationRequestContext{State: "s", Nonce: "n"})
	var missing *MissingTokenError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "code verifier", missing.Token)
	assert.Zero(t, endpoint.calls.Load())
}

func TestExchange_PKCEFlowRejectsCorruptVerifier(t *testing.T) {
	engine, endpoint := newTestEngine(t, FlowPKCE, successfulTokens)

	_, err := engine.Exchange(context.Background(), "auth-code", &AuthorizationRequestContext{
		State:        "s",
		Nonce:        "n",
		CodeVerifier: "short",
	})
	require.Error(t, err)
	assert.Zero(t, endpoint.calls.Load())
}

func TestExchangeAuthorizationCode_EmptyCode(t *testing.T) {
	engine, endpoint := newTestEngine(t, FlowTokenExchange, successfulTokens)

	_, err := engine.ExchangeAuthorizationCode(context.Background(), "", nil)
	var missing *MissingTokenError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "authorization code is missing", err.Error())
	assert.True(t, IsAuthFailure(err))
	assert.Zero(t, endpoint.calls.Load(), "no request may be sent without a code")
}

func TestExchange_PayloadErrorOnSuccessStatus(t *testing.T) {
	t.Run("first leg", func(t *testing.T) {
		engine, _ := newTestEngine(t, FlowTokenExchange, func(w http.ResponseWriter, form url.Values) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
		})

		_, err := engine.Exchange(context.Background(), "auth-code", nil)
		var tokenErr *ProviderTokenError
		require.ErrorAs(t, err, &tokenErr)
		assert.Equal(t, ErrInvalidGrant, tokenErr.Code)
		assert.Equal(t, "code already used", tokenErr.Description)
	})

	t.Run("second leg", func(t *testing.T) {
		engine, endpoint := newTestEngine(t, FlowTokenExchange, func(w http.ResponseWriter, form url.Values) {
			if form.Get("grant_type") == GrantTypeTokenExchange {
				_, _ = w.Write([]byte(`{"error":"invalid_target"}`))
				return
			}
			successfulTokens(w, form)
		})

		_, err := engine.Exchange(context.Background(), "auth-code", nil)
		var tokenErr *ProviderTokenError
		require.ErrorAs(t, err, &tokenErr)
		assert.Equal(t, ErrInvalidTarget, tokenErr.Code)
		assert.Equal(t, "invalid_target", tokenErr.Error())
		assert.EqualValues(t, 2, endpoint.calls.Load())
	})
}

func TestExchange_NonSuccessStatus(t *testing.T) {
	t.Run("with request id", func(t *testing.T) {
		engine, _ := newTestEngine(t, FlowTokenExchange, func(w http.ResponseWriter, form url.Values) {
			w.Header().Set("X-Request-Id", "req-123")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		})

		_, err := engine.ExchangeAuthorizationCode(context.Background(), "auth-code", nil)
		var reqErr *ProviderRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusBadRequest, reqErr.Status)
		assert.Equal(t, "req-123", reqErr.RequestID)
		assert.Equal(t, `{"error":"invalid_client"}`, reqErr.Body)
		assert.Equal(t, `authorization_code: 400 (RequestID req-123): {"error":"invalid_client"}`, reqErr.Error())
	})

	t.Run("without request id", func(t *testing.T) {
		engine, _ := newTestEngine(t, FlowTokenExchange, func(w http.ResponseWriter, form url.Values) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		})

		_, err := engine.ExchangeAuthorizationCode(context.Background(), "auth-code", nil)
		var reqErr *ProviderRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusInternalServerError, reqErr.Status)
		assert.Empty(t, reqErr.RequestID)
		assert.NotContains(t, reqErr.Error(), "RequestID")
	})
}

func TestExchange_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"no access token", `{"expires_in":3600}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, FlowTokenExchange, func(w http.ResponseWriter, form url.Values) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := engine.ExchangeAuthorizationCode(context.Background(), "auth-code", nil)
			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, OperationAuthorizationCode, malformed.Operation)
		})
	}
}

func TestExchange_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	engine, err := NewEngine(testProvider(t, server.URL, FlowTokenExchange), httpclient.New(httpclient.WithTimeout(50*time.Millisecond)))
	require.NoError(t, err)

	_, err = engine.ExchangeAuthorizationCode(context.Background(), "auth-code", nil)
	var reqErr *ProviderRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Zero(t, reqErr.Status)
	assert.Empty(t, reqErr.RequestID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewEngine_InvalidProvider(t *testing.T) {
	_, err := NewEngine(Provider{}, httpclient.New())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
