package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version is the config file format this build understands. Variants such
// as "v1-staging" are accepted.
const Version = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageRedis     StorageKind = "redis"
	StorageFirestore StorageKind = "firestore"
)

// RateLimitConfig bounds requests per client IP on the /auth/* routes
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

// ServerConfig represents the HTTP listener configuration
type ServerConfig struct {
	BaseURL        string           `json:"baseURL"`
	Addr           string           `json:"addr"`
	Name           string           `json:"name"`
	AllowedOrigins []string         `json:"allowedOrigins,omitempty"`
	RateLimit      *RateLimitConfig `json:"rateLimit,omitempty"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For is believed. Empty means RemoteAddr only.
	TrustedProxies []string `json:"trustedProxies,omitempty"`
}

// ProviderConfig represents the Shopify customer account application.
//
// Environment variable references using {"$env": "VAR_NAME"} syntax are
// resolved at config load time. The client secret must be one.
type ProviderConfig struct {
	ShopID       string        `json:"shopId"`
	APIVersion   string        `json:"apiVersion,omitempty"`
	ClientID     string        `json:"clientId"`
	ClientSecret Secret        `json:"clientSecret"`
	Flow         string        `json:"flow,omitempty"`
	BaseURL      string        `json:"baseURL,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`

	// VerifyIDToken enables signature and nonce checks of the first-leg
	// ID token against the issuer's JWKS.
	VerifyIDToken bool `json:"verifyIdToken,omitempty"`
}

// RedisConfig configures the redis session store
type RedisConfig struct {
	Address   string `json:"address"`
	Password  Secret `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// FirestoreConfig configures the Firestore session store
type FirestoreConfig struct {
	Project    string `json:"project"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// SessionConfig represents session cookie and storage configuration
type SessionConfig struct {
	Secret          Secret           `json:"secret"`
	CookieName      string           `json:"cookieName,omitempty"`
	Storage         StorageKind      `json:"storage"`
	CleanupInterval time.Duration    `json:"cleanupInterval,omitempty"`
	Redis           *RedisConfig     `json:"redis,omitempty"`
	Firestore       *FirestoreConfig `json:"firestore,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version  string         `json:"version"`
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Session  SessionConfig  `json:"session"`
}

// RawConfigValue represents a value that could be a string or env ref.
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value string
}

// String returns the resolved value
func (v *RawConfigValue) String() string {
	return v.value
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value}, nil
}

// parseOptional resolves raw when present, returning "" otherwise
func parseOptional(raw json.RawMessage, field string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

// parseDuration parses s when present, returning 0 otherwise
func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
