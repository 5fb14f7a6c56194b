package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dgellow/customer-auth/internal/crypto"
)

// EncryptedStore encrypts values before handing them to the wrapped store.
// Keys are left in clear so TTLs and deletes keep working.
type EncryptedStore struct {
	Store
	encryptor crypto.Encryptor
}

// NewEncrypted wraps inner with encryptor
func NewEncrypted(inner Store, encryptor crypto.Encryptor) (*EncryptedStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &EncryptedStore{Store: inner, encryptor: encryptor}, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	sealed, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting value: %w", err)
	}
	return s.Store.Set(ctx, key, sealed, ttl)
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (string, error) {
	sealed, err := s.Store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return s.open(sealed)
}

func (s *EncryptedStore) Take(ctx context.Context, key string) (string, error) {
	sealed, err := s.Store.Take(ctx, key)
	if err != nil {
		return "", err
	}
	return s.open(sealed)
}

// SweepExpired forwards to the wrapped store when it supports sweeping
func (s *EncryptedStore) SweepExpired(ctx context.Context) (int, error) {
	if sweeper, ok := s.Store.(Sweeper); ok {
		return sweeper.SweepExpired(ctx)
	}
	return 0, nil
}

func (s *EncryptedStore) open(sealed string) (string, error) {
	value, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}
	return value, nil
}
