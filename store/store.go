// Package store defines the local persistence contract for cached keys and
// the record encoding shared by every implementation.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for a name.
	ErrNotFound = errors.New("store: not found")

	// ErrDecode is returned when a stored record exists but cannot be decoded.
	// Callers are expected to Clear the entry.
	ErrDecode = errors.New("store: undecodable record")
)

// Store persists one Record per key name.
// Writes for the same name are last-write-wins.
type Store interface {
	// Load returns the record for name.
	// Returns ErrNotFound if nothing is stored, or an error wrapping ErrDecode
	// if the stored bytes are unreadable.
	Load(ctx context.Context, name string) (Record, error)

	// Save replaces the record for name.
	Save(ctx context.Context, name string, rec Record) error

	// Clear removes the record for name.
	// Returns nil if nothing is stored (idempotent).
	Clear(ctx context.Context, name string) error

	// Close releases resources held by the store.
	Close() error
}
