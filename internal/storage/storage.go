// Package storage holds the short-lived server-side state of the auth flow:
// pending authorization contexts and delegated customer-API tokens.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired
var ErrNotFound = errors.New("key not found")

// Store is a key/value store with per-key TTL. Implementations are safe for
// concurrent use.
type Store interface {
	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Take returns the value and deletes it atomically, so that two callers
	// racing on the same key cannot both see it.
	Take(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Sweeper is implemented by stores that do not expire keys on their own
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Key prefixes
const (
	PrefixAuthRequest = "authreq:"
	PrefixAccessToken = "customer-access-token:"
)
