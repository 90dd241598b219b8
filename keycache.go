// Package keycache supplies named secrets from a local store, falling back to
// a remote provider when the stored copy is missing or expired.
//
// Concurrent lookups for the same name share a single remote fetch. When a
// fetch fails, an expired value is served rather than an error.
package keycache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/key-cache/inflight"
	"github.com/wolfeidau/key-cache/remote"
	"github.com/wolfeidau/key-cache/store"
	"github.com/wolfeidau/key-cache/telemetry"
)

// DefaultFetchTimeout bounds a single remote fetch.
const DefaultFetchTimeout = 30 * time.Second

// Cache coalesces remote fetches per key name and persists their results.
//
// The mutex covers the store read, the registry check and registration as
// one step, and every store write. Waiting on a fetch happens outside it.
type Cache struct {
	mu           sync.Mutex
	store        store.Store
	provider     remote.Provider
	flights      *inflight.Group[string]
	logger       *slog.Logger
	now          func() time.Time
	fetchTimeout time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithFetchTimeout bounds each remote fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.fetchTimeout = d
	}
}

// New creates a Cache reading and writing st and fetching from p.
func New(st store.Store, p remote.Provider, opts ...Option) *Cache {
	c := &Cache{
		store:        st,
		provider:     p,
		logger:       slog.Default(),
		now:          time.Now,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.flights = inflight.New[string](inflight.WithLogger(c.logger))
	return c
}

// GetKey returns the value for name.
//
// A stored record younger than ttlMinutes is returned directly. Otherwise
// the remote provider is asked, with concurrent callers for the same name
// sharing one fetch; a successful result is stored with the ttlMinutes of
// the caller that started the fetch. If the fetch fails, or ctx is done
// first, an expired stored value is returned when one exists.
//
// The only error is a *RemoteUnavailableError.
func (c *Cache) GetKey(ctx context.Context, name string, ttlMinutes int) (string, error) {
	logger := c.logger.With("key", name, "ttl_minutes", ttlMinutes)

	c.mu.Lock()
	rec, fresh, hasFallback := c.loadLocked(ctx, logger, name)
	if fresh {
		c.mu.Unlock()
		logger.Debug("cache hit", "expires_at", rec.ExpiresAt())
		c.observe(ctx, telemetry.CacheHit)
		return rec.Value, nil
	}
	call := c.flights.Join(ctx, name, c.fetch(name, ttlMinutes))
	c.mu.Unlock()

	value, shared, err := call.Wait(ctx)
	if shared {
		telemetry.RecordCoalescedWait(ctx, outcomeOf(err))
	}
	if err == nil {
		c.observe(ctx, telemetry.CacheMiss)
		return value, nil
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Debug("stopped waiting for fetch", "error", err)
	}

	if hasFallback {
		logger.Warn("serving expired value",
			"kind", remote.KindOf(err).String(),
			"saved_at", rec.SavedAt,
			"value_fp", Fingerprint(rec.Value),
			"error", err,
		)
		c.observe(ctx, telemetry.CacheStale)
		return rec.Value, nil
	}

	kind := remote.KindOf(err)
	logger.Error("no value available", "kind", kind.String(), "shared", shared, "error", err)
	c.observe(ctx, telemetry.CacheError)
	return "", &RemoteUnavailableError{Name: name, Kind: kind, Err: err}
}

// loadLocked reads name from the store. fresh reports a usable record;
// hasFallback reports an expired one worth keeping. Store failures other
// than an undecodable record are logged and treated as a miss.
func (c *Cache) loadLocked(ctx context.Context, logger *slog.Logger, name string) (rec store.Record, fresh, hasFallback bool) {
	rec, err := c.store.Load(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return store.Record{}, false, false
	case errors.Is(err, store.ErrDecode):
		logger.Warn("clearing undecodable record", "error", err)
		if err := c.store.Clear(ctx, name); err != nil {
			logger.Error("failed to clear undecodable record", "error", err)
		}
		return store.Record{}, false, false
	default:
		logger.Error("store load failed, treating as miss", "error", err)
		return store.Record{}, false, false
	}

	if rec.Expired(c.now()) {
		return rec, false, true
	}
	return rec, true, false
}

// fetch builds the shared fetch for name. ttlMinutes is captured from the
// caller that registers it, so joiners never change the persisted TTL.
func (c *Cache) fetch(name string, ttlMinutes int) inflight.Func[string] {
	return func(ctx context.Context) (string, error) {
		logger := c.logger.With("key", name, "ttl_minutes", ttlMinutes, "fetch_id", uuid.NewString())

		// The timeout bounds the provider only; a value that arrives late is
		// still persisted with the untimed ctx.
		fetchCtx := ctx
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
			defer cancel()
		}

		logger.Debug("fetching from remote")
		start := time.Now()
		value, err := c.provider.Fetch(fetchCtx, name)
		duration := time.Since(start)
		if err != nil {
			kind := remote.KindOf(err)
			telemetry.RecordRemoteFetch(ctx, kind.String(), duration)
			logger.Warn("remote fetch failed", "kind", kind.String(), "duration", duration, "error", err)
			return "", err
		}
		telemetry.RecordRemoteFetch(ctx, "success", duration)

		rec := store.Record{Value: value, SavedAt: c.now(), TTLMinutes: ttlMinutes}
		c.mu.Lock()
		saveErr := c.store.Save(ctx, name, rec)
		c.mu.Unlock()
		if saveErr != nil {
			logger.Error("failed to persist fetched value", "error", saveErr)
		}

		logger.Info("fetched from remote", "duration", duration, "value_fp", Fingerprint(value))
		return value, nil
	}
}

// RefreshKey stores value for name as a fresh record, bypassing the remote
// provider. It is the entry point for out-of-band update notifications.
// Values are opaque here, as they are on the fetch path; callers that need
// stricter input checks apply them before calling.
// A fetch already in flight for name may still overwrite it when it lands.
func (c *Cache) RefreshKey(ctx context.Context, name, value string, ttlMinutes int) error {
	rec := store.Record{Value: value, SavedAt: c.now(), TTLMinutes: ttlMinutes}

	c.mu.Lock()
	err := c.store.Save(ctx, name, rec)
	c.mu.Unlock()

	telemetry.RecordRefresh(ctx, outcomeOf(err))
	if err != nil {
		c.logger.Error("refresh failed", "key", name, "error", err)
		return err
	}
	c.logger.Info("key refreshed", "key", name, "ttl_minutes", ttlMinutes, "value_fp", Fingerprint(value))
	return nil
}

func (c *Cache) observe(ctx context.Context, result telemetry.CacheResult) {
	telemetry.RecordLookup(ctx, result)
	telemetry.SetCacheResultContext(ctx, result)
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}
