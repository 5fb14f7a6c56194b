package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestIDTokenVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := testProvider(t, "", FlowTokenExchange)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	verifier := NewStaticIDTokenVerifier(&p, func() time.Time { return now }, key.Public())

	claims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   p.Issuer,
			"aud":   p.ClientID,
			"sub":   "gid://shopify/Customer/1",
			"email": "jane@example.com",
			"nonce": "expected-nonce",
			"iat":   now.Unix(),
			"exp":   now.Add(time.Hour).Unix(),
		}
	}

	t.Run("valid", func(t *testing.T) {
		got, err := verifier.Verify(context.Background(), signIDToken(t, key, claims()), "expected-nonce")
		require.NoError(t, err)
		assert.Equal(t, "gid://shopify/Customer/1", got.Subject)
		assert.Equal(t, "jane@example.com", got.Email)
		assert.Equal(t, now.Add(time.Hour).Unix(), got.ExpiresAt.Unix())
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, claims()), "other-nonce")
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "nonce", malformed.Field)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := claims()
		c["aud"] = "someone-else"
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, c), "expected-nonce")
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, OperationIDToken, malformed.Operation)
	})

	t.Run("expired", func(t *testing.T) {
		c := claims()
		c["exp"] = now.Add(-time.Minute).Unix()
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, c), "expected-nonce")
		assert.Error(t, err)
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = verifier.Verify(context.Background(), signIDToken(t, other, claims()), "expected-nonce")
		assert.Error(t, err)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "", "expected-nonce")
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
	})
}

func TestExchange_VerifiesIDTokenNonce(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var idToken string
	engine, endpoint := newTestEngine(t, FlowTokenExchange, func(w http.ResponseWriter, form url.Values) {
		if form.Get("grant_type") == GrantTypeAuthorizationCode {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "first-leg-token",
				"expires_in":   3600,
				"id_token":     idToken,
			})
			return
		}
		successfulTokens(w, form)
	})
	p := engine.Provider()
	engine.verifier = NewStaticIDTokenVerifier(p, nil, key.Public())

	idToken = signIDToken(t, key, jwt.MapClaims{
		"iss":   p.Issuer,
		"aud":   p.ClientID,
		"sub":   "customer-1",
		"nonce": "login-nonce",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	set, err := engine.Exchange(context.Background(), "auth-code", &AuthorizationRequestContext{State: "s", Nonce: "login-nonce"})
	require.NoError(t, err)
	require.NotNil(t, set.Claims)
	assert.Equal(t, "customer-1", set.Claims.Subject)

	_, err = engine.Exchange(context.Background(), "auth-code", &AuthorizationRequestContext{State: "s2", Nonce: "replayed-nonce"})
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "nonce", malformed.Field)
	assert.EqualValues(t, 3, endpoint.calls.Load(), "second leg is skipped when the ID token is rejected")
}
