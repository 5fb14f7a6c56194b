package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/customer-auth/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)
var _ Sweeper = (*FirestoreStore)(nil)

// FirestoreStore keeps state in a Firestore collection.
//
// Firestore TTL policies delete documents lazily (up to a day late), so reads
// check expires_at themselves and the CleanupManager sweeps expired
// documents periodically.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// FirestoreEntry is the document stored per key
type FirestoreEntry struct {
	Key       string `firestore:"key"`
	Value     string `firestore:"value"`
	ExpiresAt int64  `firestore:"expires_at"` // unix seconds, 0 = never
	UpdatedAt int64  `firestore:"updated_at"`
}

func (e *FirestoreEntry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.Unix() >= e.ExpiresAt
}

// NewFirestoreStore creates a Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		now:        time.Now,
	}, nil
}

// docID maps an arbitrary key to a valid document ID
func docID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(docID(key))
}

func (s *FirestoreStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := s.now()
	entry := FirestoreEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: now.Unix(),
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl).Unix()
	}
	if _, err := s.doc(key).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (string, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get entry: %w", err)
	}

	var entry FirestoreEntry
	if err := snap.DataTo(&entry); err != nil {
		return "", fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	if entry.expired(s.now()) {
		return "", ErrNotFound
	}
	return entry.Value, nil
}

// Take reads and deletes inside one transaction
func (s *FirestoreStore) Take(ctx context.Context, key string) (string, error) {
	ref := s.doc(key)
	var (
		value string
		live  bool
	)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get entry: %w", err)
		}

		var entry FirestoreEntry
		if err := snap.DataTo(&entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		value, live = entry.Value, !entry.expired(s.now())
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to take entry: %w", err)
	}
	if !live {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	_, err := s.doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// SweepExpired removes all expired documents
func (s *FirestoreStore) SweepExpired(ctx context.Context) (int, error) {
	now := s.now().Unix()
	iter := s.client.Collection(s.collection).
		Where("expires_at", ">", 0).
		Where("expires_at", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired entries: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
