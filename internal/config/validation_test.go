package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_redis_config",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {
					"shopId": {"$env": "SHOPIFY_CUSTOMER_SHOP_ID"},
					"clientId": {"$env": "SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_ID"},
					"clientSecret": {"$env": "SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET"},
					"flow": "token_exchange",
					"timeout": "10s",
					"verifyIdToken": true
				},
				"session": {
					"secret": {"$env": "CUSTOMER_AUTH_SESSION_SECRET"},
					"storage": "redis",
					"redis": {"address": "localhost:6379", "password": {"$env": "REDIS_PASSWORD"}}
				}
			}`,
		},
		{
			name: "memory_storage_warns",
			config: `{
				"version": "v1-staging",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {
					"shopId": "12345",
					"clientId": "shp_client",
					"clientSecret": {"$env": "SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET"},
					"verifyIdToken": true
				},
				"session": {"secret": {"$env": "CUSTOMER_AUTH_SESSION_SECRET"}}
			}`,
			wantWarnings:  []string{"memory storage does not survive restarts"},
			wantWarnCount: 1,
		},
		{
			name:         "invalid_json",
			config:       `{"version": }`,
			wantErrors:   []string{"invalid JSON"},
			wantErrCount: 1,
		},
		{
			name:         "missing_sections",
			config:       `{"version": "v1"}`,
			wantErrors:   []string{"server field is required", "provider field is required", "session field is required"},
			wantErrCount: 3,
		},
		{
			name: "wrong_version",
			config: `{
				"version": "v0.0.1-DEV_EDITION",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": {"$env": "S"}, "verifyIdToken": true},
				"session": {"secret": {"$env": "X"}, "storage": "firestore", "firestore": {"project": "p"}}
			}`,
			wantErrors:   []string{"unsupported version 'v0.0.1-DEV_EDITION'"},
			wantErrCount: 1,
		},
		{
			name: "plain_text_secrets",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": "shp_secret", "verifyIdToken": true},
				"session": {"secret": "my-session-secret", "storage": "firestore", "firestore": {"project": "p"}}
			}`,
			wantErrors: []string{
				"clientSecret must use environment variable reference",
				"secret must use environment variable reference",
			},
			wantErrCount: 2,
		},
		{
			name: "bash_style_secret",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": "${CLIENT_SECRET}", "verifyIdToken": true},
				"session": {"secret": {"$env": "X"}, "storage": "firestore", "firestore": {"project": "p"}}
			}`,
			wantErrors:    []string{`use {"$env": "CLIENT_SECRET"} instead`},
			wantErrCount:  1,
			wantWarnings:  []string{"found bash-style syntax '${CLIENT_SECRET}'"},
			wantWarnCount: 1,
		},
		{
			name: "bad_flow_and_storage",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com", "rateLimit": {"requestsPerSecond": 0}},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": {"$env": "S"}, "flow": "implicit", "timeout": "soon", "verifyIdToken": true},
				"session": {"secret": {"$env": "X"}, "storage": "postgres"}
			}`,
			wantErrors: []string{
				"requestsPerSecond must be a positive number",
				"invalid flow 'implicit'",
				"invalid duration 'soon'",
				"invalid storage 'postgres'",
			},
			wantErrCount: 4,
		},
		{
			name: "storage_sections_missing",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": {"$env": "S"}, "verifyIdToken": true},
				"session": {"secret": {"$env": "X"}, "storage": "redis", "cleanupInterval": "2h"}
			}`,
			wantErrors:    []string{"redis is required when using redis storage"},
			wantErrCount:  1,
			wantWarnings:  []string{"cleanupInterval (2h) is longer than an hour"},
			wantWarnCount: 1,
		},
		{
			name: "id_token_verification_off_warns",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com"},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": {"$env": "S"}, "flow": "pkce"},
				"session": {"secret": {"$env": "X"}, "storage": "firestore", "firestore": {"project": "p"}}
			}`,
			wantWarnings:  []string{"ID token verification is off"},
			wantWarnCount: 1,
		},
		{
			name: "trusted_proxies",
			config: `{
				"version": "v1",
				"server": {"baseURL": "https://store.example.com", "trustedProxies": ["10.0.0.0/8", "192.0.2.1", "lb.internal", 7]},
				"provider": {"shopId": "1", "clientId": "c", "clientSecret": {"$env": "S"}, "verifyIdToken": true},
				"session": {"secret": {"$env": "X"}, "storage": "firestore", "firestore": {"project": "p"}}
			}`,
			wantErrors:   []string{"'lb.internal' is not an IP address", "'7' is not an IP address"},
			wantErrCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.config), 0600))

			result, err := ValidateFile(path)
			require.NoError(t, err)

			assert.Len(t, result.Errors, tt.wantErrCount, "errors: %v", result.Errors)
			assert.Len(t, result.Warnings, tt.wantWarnCount, "warnings: %v", result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, want := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, want), "expected error containing %q, got %v", want, result.Errors)
			}
			for _, want := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, want), "expected warning containing %q, got %v", want, result.Warnings)
			}
		})
	}
}

func TestValidateFile_MissingFile(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidateEnvVarReference(t *testing.T) {
	assert.Nil(t, validateEnvVarReference(map[string]any{"$env": "X"}, "secret", "session.secret"))

	err := validateEnvVarReference(42.0, "secret", "session.secret")
	require.NotNil(t, err)
	assert.Equal(t, "session.secret", err.Path)
	assert.Contains(t, err.Message, "not float64")

	err = validateEnvVarReference("s3cr3t-value", "secret", "session.secret")
	require.NotNil(t, err)
	assert.NotContains(t, err.Message, "s3cr3t-value", "secret values must not be echoed")
}

func containsMessage(issues []ValidationError, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Message, substr) {
			return true
		}
	}
	return false
}
