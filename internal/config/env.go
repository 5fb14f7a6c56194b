package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig is the environment-only configuration, used when no config file
// is given.
type envConfig struct {
	BaseURL        string   `env:"CUSTOMER_AUTH_BASE_URL,required,notEmpty"`
	Addr           string   `env:"CUSTOMER_AUTH_ADDR" envDefault:":8080"`
	Name           string   `env:"CUSTOMER_AUTH_NAME" envDefault:"customer-auth"`
	AllowedOrigins []string `env:"CUSTOMER_AUTH_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS   float64  `env:"CUSTOMER_AUTH_RATE_LIMIT_RPS"`
	RateLimitBurst int      `env:"CUSTOMER_AUTH_RATE_LIMIT_BURST" envDefault:"20"`
	TrustedProxies []string `env:"CUSTOMER_AUTH_TRUSTED_PROXIES" envSeparator:","`

	ShopID          string        `env:"SHOPIFY_CUSTOMER_SHOP_ID,required,notEmpty"`
	APIVersion      string        `env:"SHOPIFY_CUSTOMER_API_VERSION"`
	ClientID        string        `env:"SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_ID,required,notEmpty"`
	ClientSecret    string        `env:"SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET,required,notEmpty,unset"`
	Flow            string        `env:"CUSTOMER_AUTH_FLOW"`
	ProviderBaseURL string        `env:"CUSTOMER_AUTH_PROVIDER_BASE_URL"`
	ProviderTimeout time.Duration `env:"CUSTOMER_AUTH_PROVIDER_TIMEOUT"`
	VerifyIDToken   bool          `env:"CUSTOMER_AUTH_VERIFY_ID_TOKEN"`

	SessionSecret     string        `env:"CUSTOMER_AUTH_SESSION_SECRET,required,notEmpty,unset"`
	CookieName        string        `env:"CUSTOMER_AUTH_COOKIE_NAME"`
	Storage           string        `env:"CUSTOMER_AUTH_STORAGE" envDefault:"memory"`
	CleanupInterval   time.Duration `env:"CUSTOMER_AUTH_CLEANUP_INTERVAL"`
	RedisAddr         string        `env:"CUSTOMER_AUTH_REDIS_ADDR"`
	RedisPassword     string        `env:"CUSTOMER_AUTH_REDIS_PASSWORD,unset"`
	RedisDB           int           `env:"CUSTOMER_AUTH_REDIS_DB"`
	FirestoreProject  string        `env:"CUSTOMER_AUTH_FIRESTORE_PROJECT"`
	FirestoreDatabase string        `env:"CUSTOMER_AUTH_FIRESTORE_DATABASE"`
}

// LoadFromEnv builds the configuration from environment variables
func LoadFromEnv() (Config, error) {
	ec, err := env.ParseAs[envConfig]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	config := Config{
		Version: Version,
		Server: ServerConfig{
			BaseURL:        ec.BaseURL,
			Addr:           ec.Addr,
			Name:           ec.Name,
			AllowedOrigins: ec.AllowedOrigins,
			TrustedProxies: ec.TrustedProxies,
		},
		Provider: ProviderConfig{
			ShopID:        ec.ShopID,
			APIVersion:    ec.APIVersion,
			ClientID:      ec.ClientID,
			ClientSecret:  Secret(ec.ClientSecret),
			Flow:          ec.Flow,
			BaseURL:       ec.ProviderBaseURL,
			Timeout:       ec.ProviderTimeout,
			VerifyIDToken: ec.VerifyIDToken,
		},
		Session: SessionConfig{
			Secret:          Secret(ec.SessionSecret),
			CookieName:      ec.CookieName,
			Storage:         StorageKind(ec.Storage),
			CleanupInterval: ec.CleanupInterval,
		},
	}
	if ec.RateLimitRPS > 0 {
		config.Server.RateLimit = &RateLimitConfig{
			RequestsPerSecond: ec.RateLimitRPS,
			Burst:             ec.RateLimitBurst,
		}
	}
	if ec.RedisAddr != "" {
		config.Session.Redis = &RedisConfig{
			Address:  ec.RedisAddr,
			Password: Secret(ec.RedisPassword),
			DB:       ec.RedisDB,
		}
	}
	if ec.FirestoreProject != "" {
		config.Session.Firestore = &FirestoreConfig{
			Project:  ec.FirestoreProject,
			Database: ec.FirestoreDatabase,
		}
	}

	ApplyDefaults(&config)
	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}
