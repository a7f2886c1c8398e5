package bbolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mangwale-chat/internal/storage"

	"go.etcd.io/bbolt"
)

const prefsBucket = "prefs"

// Store provides a BoltDB-backed key/value store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx, key); err != nil {
		return "", err
	}

	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(prefsBucket))
		if bucket == nil {
			return fmt.Errorf("prefs bucket is missing")
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return storage.ErrNotFound
		}
		value = string(raw)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(prefsBucket))
		if bucket == nil {
			return fmt.Errorf("prefs bucket is missing")
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(prefsBucket))
		if bucket == nil {
			return fmt.Errorf("prefs bucket is missing")
		}
		return bucket.Delete([]byte(key))
	})
}

func (s *Store) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(prefsBucket)); err != nil {
			return fmt.Errorf("create prefs bucket: %w", err)
		}
		return nil
	})
}
