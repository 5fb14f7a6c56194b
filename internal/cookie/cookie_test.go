package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSession(t *testing.T) {
	t.Setenv("CUSTOMER_AUTH_ENV", "")
	w := httptest.NewRecorder()
	SetSession(w, SessionCookie, "value", time.Hour)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionCookie, c.Name)
	assert.Equal(t, "value", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestSetSession_LastSecondDeletes(t *testing.T) {
	for _, maxAge := range []time.Duration{0, 999 * time.Millisecond, -time.Minute} {
		w := httptest.NewRecorder()
		SetSession(w, SessionCookie, "value", maxAge)

		header := w.Header().Get("Set-Cookie")
		assert.Contains(t, header, "Max-Age=0", "maxAge %s", maxAge)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge, "maxAge %s", maxAge)
	}

	w := httptest.NewRecorder()
	SetSession(w, SessionCookie, "value", 1500*time.Millisecond)
	assert.Equal(t, 1, w.Result().Cookies()[0].MaxAge)
}

func TestSetAuthState_DevIsNotSecure(t *testing.T) {
	t.Setenv("CUSTOMER_AUTH_ENV", "dev")
	w := httptest.NewRecorder()
	SetAuthState(w, "signed", 10*time.Minute)

	c := w.Result().Cookies()[0]
	assert.Equal(t, AuthStateCookie, c.Name)
	assert.Equal(t, "/auth", c.Path)
	assert.False(t, c.Secure)
	assert.Equal(t, 600, c.MaxAge)
}

func TestClear(t *testing.T) {
	w := httptest.NewRecorder()
	ClearSession(w, "custom_name")
	ClearAuthState(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "custom_name", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.Equal(t, AuthStateCookie, cookies[1].Name)
	assert.Equal(t, "/auth", cookies[1].Path)
}

func TestGet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: AuthStateCookie, Value: "state"})

	v, err := GetAuthState(r)
	require.NoError(t, err)
	assert.Equal(t, "state", v)

	_, err = Get(r, SessionCookie)
	assert.ErrorIs(t, err, http.ErrNoCookie)
}
