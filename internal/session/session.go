// Package session owns the lifetime of a signed-in customer's session:
// minting it from exchanged tokens, enforcing expiry on every read, and
// revoking it at the provider on sign-out.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/customer-auth/internal/httpclient"
	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/oauth"
	"github.com/dgellow/customer-auth/internal/profile"
	"github.com/dgellow/customer-auth/internal/storage"
	"github.com/google/uuid"
)

// ErrNoSession is returned when there is no session to read
var ErrNoSession = errors.New("no session")

// Record is a signed-in session. It is valid iff now < ExpiresAt.
type Record struct {
	ID        string           `json:"id"`
	Identity  profile.Identity `json:"identity"`
	IDToken   string           `json:"-"`
	ExpiresAt int64            `json:"expires_at"` // unix seconds
}

// Expiry returns ExpiresAt as a time
func (r *Record) Expiry() time.Time {
	return time.Unix(r.ExpiresAt, 0)
}

// Manager mints, validates and revokes sessions.
type Manager struct {
	store           storage.Store
	client          oauth.Doer
	logoutURL       string
	requestIDHeader string
	now             func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the time source used for minting and expiry checks
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. Delegated tokens are kept in store; logout
// calls go through client.
func NewManager(p *oauth.Provider, store storage.Store, client oauth.Doer, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, &oauth.ConfigurationError{Message: "session store is required"}
	}
	if client == nil {
		return nil, &oauth.ConfigurationError{Message: "http client is required"}
	}
	m := &Manager{
		store:           store,
		client:          client,
		logoutURL:       p.LogoutURL,
		requestIDHeader: p.RequestIDHeader,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func accessTokenKey(sessionID string) string {
	return storage.PrefixAccessToken + sessionID
}

// AccessToken is the delegated customer-API token held for a session
type AccessToken struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// Expiry returns ExpiresAt as a time
func (t AccessToken) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// Mint creates a session expiring expiresIn seconds from now and stores the
// delegated access token under its own key, for no longer than the session
// lives.
func (m *Manager) Mint(ctx context.Context, identity profile.Identity, idToken string, expiresIn int64, delegated oauth.DelegatedAccessToken) (*Record, error) {
	if expiresIn <= 0 {
		return nil, &oauth.MalformedResponseError{Operation: oauth.OperationAuthorizationCode, Field: "expires_in"}
	}
	if delegated.AccessToken == "" {
		return nil, &oauth.MissingTokenError{Token: "access token"}
	}

	now := m.now()
	rec := &Record{
		ID:        uuid.NewString(),
		Identity:  identity,
		IDToken:   idToken,
		ExpiresAt: now.Unix() + expiresIn,
	}

	lifetime := expiresIn
	if delegated.ExpiresIn > 0 && delegated.ExpiresIn < expiresIn {
		lifetime = delegated.ExpiresIn
	}
	stored, err := json.Marshal(AccessToken{
		Value:     delegated.AccessToken,
		ExpiresAt: now.Unix() + lifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding access token: %w", err)
	}
	if err := m.store.Set(ctx, accessTokenKey(rec.ID), string(stored), time.Duration(lifetime)*time.Second); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}

	log.LogInfoWithFields("session", "Session minted", map[string]any{
		"session_id":  rec.ID,
		"customer_id": identity.ID,
		"expires_at":  rec.Expiry().UTC().Format(time.RFC3339),
	})
	return rec, nil
}

// Validate is the read-time check applied on every access to session state.
// An expired record is never extended; the caller must sign in again.
func (m *Manager) Validate(rec *Record) (*Record, error) {
	if rec == nil || rec.ID == "" {
		return nil, ErrNoSession
	}
	if m.now().Unix() >= rec.ExpiresAt {
		return nil, &oauth.ExpiredError{ExpiredAt: rec.Expiry()}
	}
	return rec, nil
}

// Now is the manager's clock
func (m *Manager) Now() time.Time {
	return m.now()
}

// AccessToken returns the delegated customer-API token of a valid session.
// A token past its own expiry is reported missing even if the store still
// holds it.
func (m *Manager) AccessToken(ctx context.Context, rec *Record) (AccessToken, error) {
	rec, err := m.Validate(rec)
	if err != nil {
		return AccessToken{}, err
	}
	raw, err := m.store.Get(ctx, accessTokenKey(rec.ID))
	if errors.Is(err, storage.ErrNotFound) {
		return AccessToken{}, &oauth.MissingTokenError{Token: "access token"}
	}
	if err != nil {
		return AccessToken{}, fmt.Errorf("reading access token: %w", err)
	}
	var token AccessToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return AccessToken{}, fmt.Errorf("decoding access token: %w", err)
	}
	if token.Value == "" || m.now().Unix() >= token.ExpiresAt {
		return AccessToken{}, &oauth.MissingTokenError{Token: "access token"}
	}
	return token, nil
}

// Revoke signs the session out at the provider and clears local state. The
// provider call is advisory: its failure is logged and local teardown
// happens regardless. It reports whether the provider acknowledged.
func (m *Manager) Revoke(ctx context.Context, rec *Record) bool {
	if rec == nil {
		return false
	}

	acknowledged := m.logout(ctx, rec)

	if rec.ID != "" {
		if err := m.store.Delete(ctx, accessTokenKey(rec.ID)); err != nil {
			log.LogWarnWithFields("session", "Failed to clear stored access token", map[string]any{
				"session_id": rec.ID,
				"error":      err.Error(),
			})
		}
	}

	log.LogInfoWithFields("session", "Session revoked", map[string]any{
		"session_id":            rec.ID,
		"provider_acknowledged": acknowledged,
	})
	return acknowledged
}

func (m *Manager) logout(ctx context.Context, rec *Record) bool {
	if m.logoutURL == "" {
		return false
	}

	u, err := url.Parse(m.logoutURL)
	if err != nil {
		log.LogWarnWithFields("session", "Invalid logout URL", map[string]any{"error": err.Error()})
		return false
	}
	if rec.IDToken != "" {
		q := u.Query()
		q.Set("id_token_hint", rec.IDToken)
		u.RawQuery = q.Encode()
	}

	resp, err := m.client.Do(ctx, &httpclient.Request{
		Operation: oauth.OperationLogout,
		Method:    http.MethodGet,
		URL:       u.String(),
	})
	if err != nil {
		log.LogWarnWithFields("session", "Provider logout failed", map[string]any{
			"session_id": rec.ID,
			"error":      oauth.TransportError(oauth.OperationLogout, err).Error(),
		})
		return false
	}
	if !resp.OK() {
		reqErr := oauth.NewProviderRequestError(oauth.OperationLogout, resp, m.requestIDHeader)
		log.LogWarnWithFields("session", "Provider logout rejected", map[string]any{
			"session_id": rec.ID,
			"status":     reqErr.Status,
			"request_id": reqErr.RequestID,
		})
		return false
	}
	return true
}
