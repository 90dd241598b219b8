// Package memstore implements an in-process store.Store.
// Records are kept in their encoded form so decode failures behave as they
// would against a persistent store.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfeidau/key-cache/store"
)

// Store is a map-backed store.Store.
type Store struct {
	mu      sync.RWMutex
	codec   *store.Codec
	entries map[string][]byte
}

// New creates an empty in-memory store.
func New() (*Store, error) {
	codec, err := store.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}
	return &Store{
		codec:   codec,
		entries: make(map[string][]byte),
	}, nil
}

func (s *Store) Load(_ context.Context, name string) (store.Record, error) {
	s.mu.RLock()
	b, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return s.codec.Decode(b)
}

func (s *Store) Save(_ context.Context, name string, rec store.Record) error {
	b, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}
	s.PutRaw(name, b)
	return nil
}

func (s *Store) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	s.codec.Close()
	return nil
}

// PutRaw stores b for name without encoding it.
func (s *Store) PutRaw(name string, b []byte) {
	s.mu.Lock()
	s.entries[name] = append([]byte(nil), b...)
	s.mu.Unlock()
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ store.Store = (*Store)(nil)
