// Package auth orchestrates a customer login: authorization redirect,
// callback handling, token exchange, identity lookup and session minting.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/metrics"
	"github.com/dgellow/customer-auth/internal/oauth"
	"github.com/dgellow/customer-auth/internal/profile"
	"github.com/dgellow/customer-auth/internal/session"
	"github.com/dgellow/customer-auth/internal/storage"
)

const (
	// AuthRequestExpiry is how long a pending authorization request stays valid
	AuthRequestExpiry = 10 * time.Minute

	// DefaultReturnTo is where users land after login when no valid target was given
	DefaultReturnTo = "/"
)

// ErrUnknownState is returned when a callback's state matches no pending
// request: it expired, was already used, or was never issued.
var ErrUnknownState = errors.New("unknown or already used authorization state")

// Login results recorded in metrics
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Service runs the login and sign-out flows.
type Service struct {
	engine   *oauth.Engine
	fetcher  *profile.Fetcher
	sessions *session.Manager
	store    storage.Store
	metrics  *metrics.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records login and sign-out results on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService wires the login pipeline. store holds pending authorization requests.
func NewService(engine *oauth.Engine, fetcher *profile.Fetcher, sessions *session.Manager, store storage.Store, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		fetcher:  fetcher,
		sessions: sessions,
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions returns the session manager
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

func authRequestKey(state string) string {
	return storage.PrefixAuthRequest + state
}

// BeginLogin builds the provider redirect and persists the request context
// until the callback. The returned state must be bound to the browser.
func (s *Service) BeginLogin(ctx context.Context, returnTo string) (redirectURL, state string, err error) {
	redirectURL, reqCtx, err := oauth.BuildAuthorizationRequest(s.engine.Provider())
	if err != nil {
		return "", "", err
	}
	reqCtx.ReturnTo = SanitizeReturnTo(returnTo)

	data, err := json.Marshal(reqCtx)
	if err != nil {
		return "", "", fmt.Errorf("encoding authorization request: %w", err)
	}
	if err := s.store.Set(ctx, authRequestKey(reqCtx.State), string(data), AuthRequestExpiry); err != nil {
		return "", "", fmt.Errorf("storing authorization request: %w", err)
	}

	log.LogDebugWithFields("auth", "Login started", map[string]any{
		"provider":  s.engine.Provider().ID,
		"pkce":      reqCtx.CodeVerifier != "",
		"return_to": reqCtx.ReturnTo,
	})
	return redirectURL, reqCtx.State, nil
}

// CompleteLogin consumes the pending request for state, exchanges code and
// mints a session. Every failure aborts the attempt; the user must restart.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*session.Record, string, error) {
	rec, returnTo, err := s.completeLogin(ctx, state, code)
	if err != nil {
		s.metrics.IncLogin(ResultFailure)
		log.LogErrorWithFields("auth", "Login failed", map[string]any{
			"provider": s.engine.Provider().ID,
			"error":    err.Error(),
		})
		return nil, "", err
	}
	s.metrics.IncLogin(ResultSuccess)
	return rec, returnTo, nil
}

func (s *Service) completeLogin(ctx context.Context, state, code string) (*session.Record, string, error) {
	if state == "" {
		return nil, "", &oauth.MissingTokenError{Token: "state"}
	}

	// Take, not Get: a context is consumed by its first callback even when
	// the rest of the login fails.
	data, err := s.store.Take(ctx, authRequestKey(state))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrUnknownState
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading authorization request: %w", err)
	}

	var reqCtx oauth.AuthorizationRequestContext
	if err := json.Unmarshal([]byte(data), &reqCtx); err != nil {
		return nil, "", fmt.Errorf("decoding authorization request: %w", err)
	}
	if reqCtx.State != state {
		return nil, "", ErrUnknownState
	}

	tokens, err := s.engine.Exchange(ctx, code, &reqCtx)
	if err != nil {
		return nil, "", err
	}

	identity, err := s.fetcher.FetchIdentity(ctx, tokens.Delegated.AccessToken)
	if err != nil {
		return nil, "", err
	}

	rec, err := s.sessions.Mint(ctx, *identity, tokens.Initial.IDToken, tokens.Initial.ExpiresIn, tokens.Delegated)
	if err != nil {
		return nil, "", err
	}

	returnTo := reqCtx.ReturnTo
	if returnTo == "" {
		returnTo = DefaultReturnTo
	}
	return rec, returnTo, nil
}

// AbandonLogin discards the pending request for state, used when the
// provider reports an error instead of a code.
func (s *Service) AbandonLogin(ctx context.Context, state string) {
	if err := s.store.Delete(ctx, authRequestKey(state)); err != nil {
		log.LogWarnWithFields("auth", "Failed to discard authorization request", map[string]any{
			"error": err.Error(),
		})
	}
	s.metrics.IncLogin(ResultFailure)
}

// SignOut revokes the session at the provider and clears it locally. It
// never fails from the caller's point of view.
func (s *Service) SignOut(ctx context.Context, rec *session.Record) {
	if rec == nil {
		return
	}
	if s.sessions.Revoke(ctx, rec) {
		s.metrics.IncSignOut(ResultSuccess)
	} else {
		s.metrics.IncSignOut(ResultFailure)
	}
}

// CurrentSession returns rec if it is still valid. Expired and absent
// sessions both yield an error the caller treats as "not signed in".
func (s *Service) CurrentSession(rec *session.Record) (*session.Record, error) {
	return s.sessions.Validate(rec)
}

// AccessToken returns the delegated customer-API token of a valid session
func (s *Service) AccessToken(ctx context.Context, rec *session.Record) (session.AccessToken, error) {
	return s.sessions.AccessToken(ctx, rec)
}

// SanitizeReturnTo keeps only same-origin absolute paths
func SanitizeReturnTo(returnTo string) string {
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, "/\\") {
		return DefaultReturnTo
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultReturnTo
	}
	return u.RequestURI()
}
