package store

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/key-cache/telemetry"
)

// InstrumentedStore wraps a Store with metrics recording.
type InstrumentedStore struct {
	store Store
	name  string
}

// NewInstrumentedStore creates a new instrumented store wrapper.
func NewInstrumentedStore(s Store, name string) *InstrumentedStore {
	return &InstrumentedStore{store: s, name: name}
}

func (is *InstrumentedStore) Load(ctx context.Context, name string) (Record, error) {
	start := time.Now()
	rec, err := is.store.Load(ctx, name)
	telemetry.RecordStoreOp(ctx, is.name, "load", outcomeFromError(err), time.Since(start))
	return rec, err
}

func (is *InstrumentedStore) Save(ctx context.Context, name string, rec Record) error {
	start := time.Now()
	err := is.store.Save(ctx, name, rec)
	telemetry.RecordStoreOp(ctx, is.name, "save", outcomeFromError(err), time.Since(start))
	return err
}

func (is *InstrumentedStore) Clear(ctx context.Context, name string) error {
	start := time.Now()
	err := is.store.Clear(ctx, name)
	telemetry.RecordStoreOp(ctx, is.name, "clear", outcomeFromError(err), time.Since(start))
	return err
}

func (is *InstrumentedStore) Close() error {
	return is.store.Close()
}

// Unwrap returns the underlying store.
func (is *InstrumentedStore) Unwrap() Store {
	return is.store
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "error"
	}
}

var _ Store = (*InstrumentedStore)(nil)
