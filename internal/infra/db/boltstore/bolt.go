// Package boltstore persists payment contexts, sessions and credentials in a single
// embedded BoltDB file. Every mutating call runs in one read-write
// transaction; bolt admits one writer at a time, which gives the stores their
// compare-and-set semantics without extra locking.
package boltstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"newspay-l402/internal/domain"
)

var (
	bucketContexts    = []byte("payment_contexts")
	bucketSessions    = []byte("payment_sessions")
	bucketCredentials = []byte("bearer_credentials")
)

// DB wraps the bolt file shared by the three repositories.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures every bucket exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketContexts, bucketSessions, bucketCredentials} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the database file lock.
func (d *DB) Close() error {
	return d.db.Close()
}

func get(b *bolt.Bucket, key string, v any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return nil
}

func put(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
