package log

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "info"},
		{in: "debug", want: "debug"},
		{in: "WARNING", want: "warn"},
		{in: "trace", want: "trace"},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			prev := GetLogLevel()
			t.Cleanup(func() { _ = SetLogLevel(prev) })

			err := SetLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.in != "" {
				assert.Equal(t, tt.want, GetLogLevel())
			}
		})
	}
}

func TestLogWithFields_RedactsCredentials(t *testing.T) {
	buf := captureOutput(t)

	LogInfoWithFields("oauth", "Token exchange completed", map[string]any{
		"access_token": "shcat_live_secret",
		"Code":         "auth-code",
		"request_id":   "req-123",
	})

	out := buf.String()
	assert.NotContains(t, out, "shcat_live_secret")
	assert.NotContains(t, out, "auth-code")
	assert.Contains(t, out, "req-123")
	assert.Equal(t, 2, strings.Count(out, Redacted))
	assert.Contains(t, out, "component=oauth")
}

func TestLogWithFields_SortedKeys(t *testing.T) {
	buf := captureOutput(t)

	LogInfoWithFields("test", "ordered", map[string]any{"b": 2, "a": 1, "c": 3})

	out := buf.String()
	a, b, c := strings.Index(out, "a=1"), strings.Index(out, "b=2"), strings.Index(out, "c=3")
	require.True(t, a >= 0 && b >= 0 && c >= 0, out)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestLogTrace_BelowLevel(t *testing.T) {
	buf := captureOutput(t)
	prev := GetLogLevel()
	t.Cleanup(func() { _ = SetLogLevel(prev) })
	require.NoError(t, SetLogLevel("info"))
	buf.Reset()

	LogTraceWithFields("cookie", "Session cookie set", nil)
	assert.Empty(t, buf.String())
}
