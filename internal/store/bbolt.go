// Package store provides bbolt-based persistence for tfsgit.
// It keeps the projection log: which commit every fetched changeset became,
// and the newest projected commit of each remote.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// FileName is the database file name inside the control directory.
const FileName = "tfsgit.db"

// Bucket names used by the store.
var (
	bucketChangesets = []byte("changesets") // "<remote>:<id>" -> ChangesetRecord
	bucketTips       = []byte("tips")       // remote -> Tip
	bucketKV         = []byte("kv")
)

// Store represents the bbolt database store.
type Store struct {
	db *bolt.DB
}

// New opens or creates a bbolt database at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Initialize creates all required buckets.
func (s *Store) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketChangesets, bucketTips, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// GetValue gets a value from the key-value bucket.
func (s *Store) GetValue(key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			val = string(v)
		}
		return nil
	})
	return val, err
}

// SetValue sets a value in the key-value bucket.
func (s *Store) SetValue(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b == nil {
			return fmt.Errorf("kv bucket not found")
		}
		return b.Put([]byte(key), []byte(value))
	})
}
