package config

import (
	"encoding/json"
)

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL        json.RawMessage  `json:"baseURL"`
		Addr           json.RawMessage  `json:"addr"`
		Name           string           `json:"name"`
		AllowedOrigins []string         `json:"allowedOrigins,omitempty"`
		RateLimit      *RateLimitConfig `json:"rateLimit,omitempty"`
		TrustedProxies []string         `json:"trustedProxies,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.BaseURL, err = parseOptional(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	if s.Addr, err = parseOptional(raw.Addr, "addr"); err != nil {
		return err
	}
	s.Name = raw.Name
	s.AllowedOrigins = raw.AllowedOrigins
	s.RateLimit = raw.RateLimit
	s.TrustedProxies = raw.TrustedProxies
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ShopID        json.RawMessage `json:"shopId"`
		APIVersion    string          `json:"apiVersion,omitempty"`
		ClientID      json.RawMessage `json:"clientId"`
		ClientSecret  json.RawMessage `json:"clientSecret"`
		Flow          string          `json:"flow,omitempty"`
		BaseURL       string          `json:"baseURL,omitempty"`
		Timeout       string          `json:"timeout,omitempty"`
		VerifyIDToken bool            `json:"verifyIdToken,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if p.ShopID, err = parseOptional(raw.ShopID, "shopId"); err != nil {
		return err
	}
	if p.ClientID, err = parseOptional(raw.ClientID, "clientId"); err != nil {
		return err
	}
	secret, err := parseOptional(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)
	if p.Timeout, err = parseDuration(raw.Timeout, "timeout"); err != nil {
		return err
	}

	p.APIVersion = raw.APIVersion
	p.Flow = raw.Flow
	p.BaseURL = raw.BaseURL
	p.VerifyIDToken = raw.VerifyIDToken
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Secret          json.RawMessage  `json:"secret"`
		CookieName      string           `json:"cookieName,omitempty"`
		Storage         StorageKind      `json:"storage"`
		CleanupInterval string           `json:"cleanupInterval,omitempty"`
		Redis           *RedisConfig     `json:"redis,omitempty"`
		Firestore       *FirestoreConfig `json:"firestore,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	secret, err := parseOptional(raw.Secret, "secret")
	if err != nil {
		return err
	}
	s.Secret = Secret(secret)
	if s.CleanupInterval, err = parseDuration(raw.CleanupInterval, "cleanupInterval"); err != nil {
		return err
	}

	s.CookieName = raw.CookieName
	s.Storage = raw.Storage
	s.Redis = raw.Redis
	s.Firestore = raw.Firestore
	return nil
}

// UnmarshalJSON implements custom unmarshaling for RedisConfig
func (r *RedisConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Address   json.RawMessage `json:"address"`
		Password  json.RawMessage `json:"password,omitempty"`
		DB        int             `json:"db,omitempty"`
		KeyPrefix string          `json:"keyPrefix,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if r.Address, err = parseOptional(raw.Address, "address"); err != nil {
		return err
	}
	password, err := parseOptional(raw.Password, "password")
	if err != nil {
		return err
	}
	r.Password = Secret(password)
	r.DB = raw.DB
	r.KeyPrefix = raw.KeyPrefix
	return nil
}

// UnmarshalJSON implements custom unmarshaling for FirestoreConfig
func (f *FirestoreConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Project    json.RawMessage `json:"project"`
		Database   string          `json:"database,omitempty"`
		Collection string          `json:"collection,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if f.Project, err = parseOptional(raw.Project, "project"); err != nil {
		return err
	}
	f.Database = raw.Database
	f.Collection = raw.Collection
	return nil
}
