package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgellow/customer-auth/internal/crypto"
	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/oauth"
)

const (
	DefaultAddr            = ":8080"
	DefaultName            = "customer-auth"
	DefaultCookieName      = "customer_session"
	DefaultCleanupInterval = 5 * time.Minute
	DefaultCollection      = "customer_auth_state"
	DefaultRedisPrefix     = "customer-auth:"
	CallbackPath           = "/auth/callback"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, Version) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)
	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	secrets := []struct {
		section string
		name    string
	}{
		{"provider", "clientSecret"},
		{"session", "secret"},
	}

	for _, secret := range secrets {
		section, ok := rawConfig[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", secret.section, secret.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", secret.section, secret.name)
			}
		}
	}
	return nil
}

// ApplyDefaults fills optional fields left empty
func ApplyDefaults(config *Config) {
	if config.Version == "" {
		config.Version = Version
	}
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}
	if config.Server.Name == "" {
		config.Server.Name = DefaultName
	}
	if config.Provider.APIVersion == "" {
		config.Provider.APIVersion = oauth.ShopifyAPIVersion
	}
	if config.Provider.Flow == "" {
		config.Provider.Flow = string(oauth.FlowTokenExchange)
	}
	if config.Session.Storage == "" {
		config.Session.Storage = StorageMemory
	}
	if config.Session.CookieName == "" {
		config.Session.CookieName = DefaultCookieName
	}
	if config.Session.CleanupInterval == 0 {
		config.Session.CleanupInterval = DefaultCleanupInterval
	}
	if f := config.Session.Firestore; f != nil && f.Collection == "" {
		f.Collection = DefaultCollection
	}
	if r := config.Session.Redis; r != nil && r.KeyPrefix == "" {
		r.KeyPrefix = DefaultRedisPrefix
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	u, err := url.Parse(config.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.baseURL must be an absolute URL, got %q", config.Server.BaseURL)
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if rl := config.Server.RateLimit; rl != nil {
		if rl.RequestsPerSecond <= 0 {
			return fmt.Errorf("server.rateLimit.requestsPerSecond must be positive")
		}
		if rl.Burst < 1 {
			return fmt.Errorf("server.rateLimit.burst must be at least 1")
		}
	}
	for _, proxy := range config.Server.TrustedProxies {
		if !validProxyAddr(proxy) {
			return fmt.Errorf("server.trustedProxies: %q is not an IP address or CIDR range", proxy)
		}
	}

	if err := validateProviderConfig(&config.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}
	if err := validateSessionConfig(&config.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	if p.ShopID == "" {
		return fmt.Errorf("shopId is required")
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	switch oauth.Flow(p.Flow) {
	case oauth.FlowTokenExchange, oauth.FlowPKCE:
	default:
		return fmt.Errorf("flow must be %q or %q, got %q", oauth.FlowTokenExchange, oauth.FlowPKCE, p.Flow)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if !p.VerifyIDToken {
		log.LogWarn("ID token verification is disabled, set provider.verifyIdToken to check the ID token signature and nonce")
	}
	return nil
}

func validProxyAddr(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func validateSessionConfig(s *SessionConfig) error {
	if len(s.Secret) < crypto.MinSecretLength {
		return fmt.Errorf("secret must be at least %d characters (got %d). Generate with: openssl rand -base64 32", crypto.MinSecretLength, len(s.Secret))
	}
	if s.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}

	switch s.Storage {
	case StorageMemory:
		log.LogWarn("Using in-memory session storage, logins will not survive restarts or span instances")
	case StorageRedis:
		if s.Redis == nil || s.Redis.Address == "" {
			return fmt.Errorf("redis.address is required when using redis storage")
		}
	case StorageFirestore:
		if s.Firestore == nil || s.Firestore.Project == "" {
			return fmt.Errorf("firestore.project is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage %q - must be memory, redis or firestore", s.Storage)
	}
	return nil
}

// RedirectURL is the callback URL registered with the provider
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.Server.BaseURL, "/") + CallbackPath
}

// ProviderOptions maps the provider section onto the Shopify endpoint builder
func (c *Config) ProviderOptions() oauth.ShopifyOptions {
	return oauth.ShopifyOptions{
		ShopID:       c.Provider.ShopID,
		APIVersion:   c.Provider.APIVersion,
		ClientID:     c.Provider.ClientID,
		ClientSecret: string(c.Provider.ClientSecret),
		RedirectURL:  c.RedirectURL(),
		Flow:         oauth.Flow(c.Provider.Flow),
		BaseURL:      c.Provider.BaseURL,
	}
}
