package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/customer-auth/internal/envutil"
	"github.com/dgellow/customer-auth/internal/log"
)

// Cookie names used by customer-auth
const (
	SessionCookie   = "customer_session"
	AuthStateCookie = "customer_auth_state"
)

// authStatePath scopes the state cookie to the auth routes
const authStatePath = "/auth"

// maxAgeSeconds converts d to a cookie Max-Age. Under one second the cookie
// is deleted: MaxAge 0 would mean no Max-Age at all, a session cookie.
func maxAgeSeconds(d time.Duration) int {
	if d < time.Second {
		return -1
	}
	return int(d.Seconds())
}

// SetSession sets a session cookie with appropriate security settings
func SetSession(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAgeSeconds(maxAge),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// SetAuthState binds a pending login to the browser. Lax so it survives
// the top-level redirect back from the provider.
func SetAuthState(w http.ResponseWriter, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthStateCookie,
		Value:    value,
		Path:     authStatePath,
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAgeSeconds(maxAge),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter, name string) {
	Clear(w, name, "/")
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearAuthState removes the login state cookie
func ClearAuthState(w http.ResponseWriter) {
	Clear(w, AuthStateCookie, authStatePath)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetAuthState retrieves the login state cookie value
func GetAuthState(r *http.Request) (string, error) {
	return Get(r, AuthStateCookie)
}
