// Package boltstore implements store.Store on a bbolt file.
package boltstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wolfeidau/key-cache/store"
)

// DefaultBucket holds the encoded key records.
const DefaultBucket = "keys"

var errNotOpen = errors.New("boltstore: database not open")

// Store implements store.Store using bbolt.
// mu guards db and codec; operations hold it shared so Close waits for them.
type Store struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	codec  *store.Codec
	logger *slog.Logger
	bucket []byte
	noSync bool // disables fsync per transaction (for testing only)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// WithBucket overrides the bucket records are kept in.
func WithBucket(name string) Option {
	return func(s *Store) {
		s.bucket = []byte(name)
	}
}

// New creates a Store. Call Open before use.
func New(opts ...Option) *Store {
	s := &Store{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		bucket: []byte(DefaultBucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at the given path, creating it if needed.
func (s *Store) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  s.noSync,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return err
	}

	codec, err := store.NewCodec()
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating codec: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.codec = codec
	s.mu.Unlock()
	s.logger.Debug("opened key store", "path", path, "noSync", s.noSync)
	return nil
}

// Close closes the database and releases resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codec != nil {
		s.codec.Close()
		s.codec = nil
	}
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing key store")
	err := s.db.Close()
	s.db = nil
	return err
}

// Load returns the record for name.
func (s *Store) Load(_ context.Context, name string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return store.Record{}, errNotOpen
	}

	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return store.ErrNotFound
		}
		val := bucket.Get([]byte(name))
		if val == nil {
			return store.ErrNotFound
		}
		data = make([]byte, len(val))
		copy(data, val)
		return nil
	})
	if err != nil {
		return store.Record{}, err
	}

	return s.codec.Decode(data)
}

// Save replaces the record for name.
func (s *Store) Save(_ context.Context, name string, rec store.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return errNotOpen
	}

	data, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}

	return s.put(name, data)
}

// putRaw writes bytes without encoding them.
func (s *Store) putRaw(name string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return errNotOpen
	}
	return s.put(name, data)
}

func (s *Store) put(name string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucket)
		}
		if err := bucket.Put([]byte(name), data); err != nil {
			return fmt.Errorf("putting record: %w", err)
		}
		return nil
	})
}

// Clear removes the record for name.
func (s *Store) Clear(_ context.Context, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return errNotOpen
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(name))
	})
}

// Names returns every stored key name.
func (s *Store) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotOpen
	}
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

var _ store.Store = (*Store)(nil)
