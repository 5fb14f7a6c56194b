package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CUSTOMER_AUTH_BASE_URL", "https://store.example.com")
	t.Setenv("SHOPIFY_CUSTOMER_SHOP_ID", "12345")
	t.Setenv("SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_ID", "shp_client")
	t.Setenv("SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET", "shp_secret")
	t.Setenv("CUSTOMER_AUTH_SESSION_SECRET", testSessionSecret)
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CUSTOMER_AUTH_FLOW", "pkce")
	t.Setenv("CUSTOMER_AUTH_PROVIDER_TIMEOUT", "3s")
	t.Setenv("CUSTOMER_AUTH_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("CUSTOMER_AUTH_RATE_LIMIT_RPS", "2")
	t.Setenv("CUSTOMER_AUTH_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")
	t.Setenv("CUSTOMER_AUTH_STORAGE", "redis")
	t.Setenv("CUSTOMER_AUTH_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	require.NotNil(t, cfg.Server.RateLimit)
	assert.Equal(t, 2.0, cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Server.TrustedProxies)

	assert.Equal(t, "12345", cfg.Provider.ShopID)
	assert.Equal(t, Secret("shp_secret"), cfg.Provider.ClientSecret)
	assert.Equal(t, "pkce", cfg.Provider.Flow)
	assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)

	assert.Equal(t, StorageRedis, cfg.Session.Storage)
	require.NotNil(t, cfg.Session.Redis)
	assert.Equal(t, "localhost:6379", cfg.Session.Redis.Address)
	assert.Equal(t, DefaultRedisPrefix, cfg.Session.Redis.KeyPrefix)
	assert.Nil(t, cfg.Session.Firestore)
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET")
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CUSTOMER_AUTH_SESSION_SECRET", "short")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret must be at least 32 characters")
}
