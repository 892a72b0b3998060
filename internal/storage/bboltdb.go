package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pilab-dev/estate-auth/log"
	"go.etcd.io/bbolt"
)

const (
	// DefaultBucketName is used if no specific bucket is provided for generic operations.
	DefaultBucketName = "default"
	metadataSuffix    = "_meta"
)

// StoredItemMetadata holds metadata for a stored item, primarily its expiration time.
type StoredItemMetadata struct {
	ExpiresAtUnixNano int64
}

// BBoltStore is a small key-value store with per-item TTL on top of bbolt.
// It holds the client's local state: session cookies and pending sign-ins.
type BBoltStore struct {
	db         *bbolt.DB
	defaultTTL time.Duration
	logger     log.Logger
	now        func() time.Time
}

// NewBBoltStore opens (or creates) the database at dbPath. Items stored with a
// zero TTL use defaultTTL.
func NewBBoltStore(dbPath string, defaultTTL time.Duration, logger log.Logger) (*BBoltStore, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	// Ensure the directory for the database file exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state db at %s: %w", dbPath, err)
	}

	store := &BBoltStore{
		db:         db,
		defaultTTL: defaultTTL,
		logger:     logger.With(map[string]interface{}{"component": "storage"}),
		now:        time.Now,
	}

	if err := store.ensureBucket(DefaultBucketName); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure default bucket: %w", err)
	}

	store.logger.Debug(context.Background(), "state db opened", map[string]interface{}{"path": dbPath})
	return store, nil
}

func (s *BBoltStore) ensureBucket(bucketName string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName + metadataSuffix)); err != nil {
			return fmt.Errorf("failed to create metadata bucket for %s: %w", bucketName, err)
		}
		return nil
	})
}

// Set stores a key-value pair in the specified bucket.
// If ttl is 0, defaultTTL is used. If ttl is negative, the item never expires.
func (s *BBoltStore) Set(bucketName, key string, value []byte, ttl time.Duration) error {
	if bucketName == "" {
		bucketName = DefaultBucketName
	}
	if err := s.ensureBucket(bucketName); err != nil {
		return err
	}

	var expiresAtUnixNano int64
	if ttl >= 0 {
		if ttl == 0 {
			ttl = s.defaultTTL
		}
		expiresAtUnixNano = s.now().Add(ttl).UnixNano()
	}

	var metaBuf bytes.Buffer
	if err := gob.NewEncoder(&metaBuf).Encode(StoredItemMetadata{ExpiresAtUnixNano: expiresAtUnixNano}); err != nil {
		return fmt.Errorf("failed to encode metadata for key %s: %w", key, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(bucketName)).Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to put key %s in bucket %s: %w", key, bucketName, err)
		}
		return tx.Bucket([]byte(bucketName+metadataSuffix)).Put([]byte(key), metaBuf.Bytes())
	})
}

// Get retrieves a value by key. Expired items are reported as not found.
func (s *BBoltStore) Get(bucketName, key string) ([]byte, time.Time, bool, error) {
	if bucketName == "" {
		bucketName = DefaultBucketName
	}

	var (
		value     []byte
		expiresAt time.Time
		found     bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		metaB := tx.Bucket([]byte(bucketName + metadataSuffix))
		if b == nil || metaB == nil {
			return nil
		}

		metaBytes := metaB.Get([]byte(key))
		if metaBytes == nil {
			return nil
		}

		var metadata StoredItemMetadata
		if err := gob.NewDecoder(bytes.NewReader(metaBytes)).Decode(&metadata); err != nil {
			return fmt.Errorf("failed to decode metadata for key %s: %w", key, err)
		}
		if metadata.ExpiresAtUnixNano != 0 && s.now().UnixNano() > metadata.ExpiresAtUnixNano {
			return nil
		}

		valBytes := b.Get([]byte(key))
		if valBytes == nil {
			return nil
		}

		// Values are only valid for the life of the transaction.
		value = bytes.Clone(valBytes)
		if metadata.ExpiresAtUnixNano != 0 {
			expiresAt = time.Unix(0, metadata.ExpiresAtUnixNano)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, time.Time{}, false, err
	}

	return value, expiresAt, found, nil
}

// Delete removes a key from the specified bucket. Missing keys are not an error.
func (s *BBoltStore) Delete(bucketName, key string) error {
	if bucketName == "" {
		bucketName = DefaultBucketName
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete key %s from bucket %s: %w", key, bucketName, err)
		}
		if metaB := tx.Bucket([]byte(bucketName + metadataSuffix)); metaB != nil {
			return metaB.Delete([]byte(key))
		}
		return nil
	})
}

// PurgeExpired removes every expired item from every bucket and returns how
// many were deleted. The CLI calls it once at startup instead of running a
// background cleanup loop.
func (s *BBoltStore) PurgeExpired(ctx context.Context) (int, error) {
	nowNano := s.now().UnixNano()
	deleted := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, metaB *bbolt.Bucket) error {
			if !bytes.HasSuffix(name, []byte(metadataSuffix)) {
				return nil
			}
			data := tx.Bucket(bytes.TrimSuffix(name, []byte(metadataSuffix)))

			var expired [][]byte
			c := metaB.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var metadata StoredItemMetadata
				if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&metadata); err != nil {
					s.logger.Warn(ctx, "skipping undecodable metadata", map[string]interface{}{"bucket": string(name), "key": string(k)})
					continue
				}
				if metadata.ExpiresAtUnixNano != 0 && nowNano > metadata.ExpiresAtUnixNano {
					expired = append(expired, bytes.Clone(k))
				}
			}

			for _, k := range expired {
				if err := metaB.Delete(k); err != nil {
					return err
				}
				if data != nil {
					if err := data.Delete(k); err != nil {
						return err
					}
				}
				deleted++
			}
			return nil
		})
	})
	if err != nil {
		return deleted, fmt.Errorf("failed to purge expired items: %w", err)
	}

	if deleted > 0 {
		s.logger.Debug(ctx, "purged expired state", map[string]interface{}{"count": deleted})
	}
	return deleted, nil
}

// Close closes the database.
func (s *BBoltStore) Close() error {
	return s.db.Close()
}
