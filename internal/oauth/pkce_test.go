package oauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestVerifyPKCE(t *testing.T) {
	t.Run("RFC 7636 Appendix B test vector", func(t *testing.T) {
		verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
		challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
		assert.True(t, VerifyPKCE(verifier, challenge))
		assert.False(t, VerifyPKCE("wrong-verifier", challenge))
	})

	t.Run("matches x/oauth2 challenge", func(t *testing.T) {
		verifier := oauth2.GenerateVerifier()
		assert.True(t, VerifyPKCE(verifier, oauth2.S256ChallengeFromVerifier(verifier)))
	})
}

func TestValidateCodeVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		wantErr  bool
	}{
		{name: "generated", verifier: oauth2.GenerateVerifier()},
		{name: "rfc example", verifier: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"},
		{name: "unreserved punctuation", verifier: strings.Repeat("a", 40) + "-._~"},
		{name: "too short", verifier: "abc", wantErr: true},
		{name: "too long", verifier: strings.Repeat("a", 129), wantErr: true},
		{name: "invalid character", verifier: strings.Repeat("a", 43) + "+", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCodeVerifier(tt.verifier)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
