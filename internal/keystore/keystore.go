// Package keystore provides an optional bbolt-backed durability layer for
// the Key Scheduler's process-local state. The core scheduler
// (internal/keysched) works entirely in-memory; when given a Store it
// writes the per-channel failed-key set through on every MarkKeyFailed, so
// a restart mid-outage does not re-offer keys that were already known-bad.
// Store also offers SaveKeyOrder/LoadKeyOrder, but the scheduler does not
// call them, so a deprioritized key order is not persisted across restarts.
package keystore

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketFailedKeys = []byte("failed_keys")
	bucketKeyOrder   = []byte("key_order")
)

// Store wraps a bbolt database of two buckets keyed by channel name.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFailedKeys); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketKeyOrder)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveFailedKeys persists the full failed-key set for a channel.
func (s *Store) SaveFailedKeys(channel string, keys []string) error {
	return s.save(bucketFailedKeys, channel, keys)
}

// LoadFailedKeys returns the previously persisted failed-key set for a
// channel, or nil if none was saved.
func (s *Store) LoadFailedKeys(channel string) ([]string, error) {
	return s.load(bucketFailedKeys, channel)
}

// SaveKeyOrder persists the deprioritized key order for a channel.
func (s *Store) SaveKeyOrder(channel string, keys []string) error {
	return s.save(bucketKeyOrder, channel, keys)
}

// LoadKeyOrder returns the previously persisted key order for a channel,
// or nil if none was saved.
func (s *Store) LoadKeyOrder(channel string) ([]string, error) {
	return s.load(bucketKeyOrder, channel)
}

func (s *Store) save(bucket []byte, channel string, keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(channel), data)
	})
}

func (s *Store) load(bucket []byte, channel string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(channel))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &keys)
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: load: %w", err)
	}
	return keys, nil
}
