package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/customer-auth/internal/auth"
	"github.com/dgellow/customer-auth/internal/cookie"
	"github.com/dgellow/customer-auth/internal/crypto"
	jsonwriter "github.com/dgellow/customer-auth/internal/json"
	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/oauth"
	"github.com/dgellow/customer-auth/internal/session"
)

// SignOutRedirect is where the browser lands after signing out
const SignOutRedirect = "/"

// AuthHandlers serves the browser-facing login, callback, sign-out, session
// and token endpoints
type AuthHandlers struct {
	service    *auth.Service
	codec      *session.Codec
	stateToken crypto.TokenSigner
	cookieName string
}

// authState binds a pending login to the browser that started it
type authState struct {
	State string `json:"state"`
}

// SessionResponse is the body of GET /auth/session for a signed-in customer
type SessionResponse struct {
	User    SessionUser `json:"user"`
	Expires string      `json:"expires"`
}

// SessionUser is the customer identity exposed to the storefront
type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TokenResponse is the body of GET /auth/token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Expires     string `json:"expires"`
}

// NewAuthHandlers creates the auth handlers. stateKey signs the short-lived
// login state cookie.
func NewAuthHandlers(service *auth.Service, codec *session.Codec, stateKey []byte, cookieName string) *AuthHandlers {
	if cookieName == "" {
		cookieName = cookie.SessionCookie
	}
	return &AuthHandlers{
		service:    service,
		codec:      codec,
		stateToken: crypto.NewTokenSigner(stateKey, auth.AuthRequestExpiry),
		cookieName: cookieName,
	}
}

// SignInHandler starts a login and redirects to the provider
func (h *AuthHandlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	redirectURL, state, err := h.service.BeginLogin(r.Context(), r.URL.Query().Get("returnTo"))
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to start login", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	signed, err := h.stateToken.Sign(authState{State: state})
	if err != nil {
		log.LogError("Failed to sign login state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}
	cookie.SetAuthState(w, signed, auth.AuthRequestExpiry)

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// CallbackHandler completes the login the provider redirected back from
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	cookie.ClearAuthState(w)

	if !h.stateMatchesBrowser(r, state) {
		log.LogWarnWithFields("auth", "Login state does not match this browser", nil)
		jsonwriter.WriteAuthenticationFailed(w)
		return
	}

	if errCode := q.Get("error"); errCode != "" {
		log.LogWarnWithFields("auth", "Provider returned an error", map[string]any{
			"error":             errCode,
			"error_description": q.Get("error_description"),
		})
		h.service.AbandonLogin(r.Context(), state)
		jsonwriter.WriteAuthenticationFailed(w)
		return
	}

	rec, returnTo, err := h.service.CompleteLogin(r.Context(), state, q.Get("code"))
	if err != nil {
		jsonwriter.WriteAuthenticationFailed(w)
		return
	}

	value, err := h.codec.Encode(rec)
	if err != nil {
		log.LogError("Failed to encode session: %v", err)
		jsonwriter.WriteAuthenticationFailed(w)
		return
	}
	cookie.SetSession(w, h.cookieName, value, session.MaxAge(rec, h.service.Sessions().Now()))

	http.Redirect(w, r, returnTo, http.StatusFound)
}

func (h *AuthHandlers) stateMatchesBrowser(r *http.Request, state string) bool {
	if state == "" {
		return false
	}
	signed, err := cookie.GetAuthState(r)
	if err != nil {
		return false
	}
	var bound authState
	if err := h.stateToken.Verify(signed, &bound); err != nil {
		log.LogDebug("Invalid login state cookie: %v", err)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bound.State), []byte(state)) == 1
}

// SignOutHandler revokes the session at the provider, clears it locally and
// redirects home. It always succeeds for the browser.
func (h *AuthHandlers) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if rec, err := h.decodeSession(r); err == nil {
		h.service.SignOut(r.Context(), rec)
	}
	cookie.ClearSession(w, h.cookieName)
	http.Redirect(w, r, SignOutRedirect, http.StatusFound)
}

// SessionHandler reports the current customer. Expired, invalid and absent
// sessions all answer {}.
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := h.CurrentSession(r)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			cookie.ClearSession(w, h.cookieName)
		}
		_ = jsonwriter.Write(w, struct{}{})
		return
	}

	_ = jsonwriter.Write(w, SessionResponse{
		User: SessionUser{
			ID:    rec.Identity.ID,
			Name:  rec.Identity.Name,
			Email: rec.Identity.Email,
		},
		Expires: rec.Expiry().UTC().Format(time.RFC3339),
	})
}

// TokenHandler hands the storefront the delegated customer-API token of the
// current session. Without a valid session, or once the token has lapsed, it
// answers 401 and the storefront must sign in again.
func (h *AuthHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := h.CurrentSession(r)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			cookie.ClearSession(w, h.cookieName)
		}
		jsonwriter.WriteUnauthorized(w, "Not signed in")
		return
	}

	token, err := h.service.AccessToken(r.Context(), rec)
	if err != nil {
		log.LogWarnWithFields("auth", "No access token for session", map[string]any{
			"session_id": rec.ID,
			"error":      err.Error(),
		})
		jsonwriter.WriteUnauthorized(w, "Not signed in")
		return
	}

	_ = jsonwriter.Write(w, TokenResponse{
		AccessToken: token.Value,
		Expires:     token.Expiry().UTC().Format(time.RFC3339),
	})
}

// CurrentSession returns the valid session carried by r
func (h *AuthHandlers) CurrentSession(r *http.Request) (*session.Record, error) {
	rec, err := h.decodeSession(r)
	if err != nil {
		return nil, err
	}
	valid, err := h.service.CurrentSession(rec)
	if oauth.IsExpired(err) {
		log.LogDebugWithFields("auth", "Session expired", map[string]any{
			"session_id": rec.ID,
		})
	}
	return valid, err
}

func (h *AuthHandlers) decodeSession(r *http.Request) (*session.Record, error) {
	value, err := cookie.Get(r, h.cookieName)
	if err != nil {
		return nil, err
	}
	return h.codec.Decode(value)
}
