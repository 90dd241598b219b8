// Package redisstore implements store.Store on Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfeidau/key-cache/store"
)

// DefaultPrefix is prepended to every key name.
const DefaultPrefix = "key-cache:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store implements store.Store using Redis strings.
//
// Records are written without a Redis TTL by default: an expired record must
// remain readable so it can be served when the remote is down.
type Store struct {
	client    redis.UniversalClient
	codec     *store.Codec
	logger    *slog.Logger
	prefix    string
	retention time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRetention sets a hard Redis expiry on every write.
// Records older than d disappear entirely, including as a fallback.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// Dial connects to Redis and verifies the connection with a PING.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}

	s, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return s, nil
}

// New creates a Store over an existing client. The Store owns the client
// and closes it on Close.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	codec, err := store.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}
	s := &Store{
		client: client,
		codec:  codec,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) Load(ctx context.Context, name string) (store.Record, error) {
	val, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("getting %s: %w", name, err)
	}
	return s.codec.Decode(val)
}

func (s *Store) Save(ctx context.Context, name string, rec store.Record) error {
	data, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(name), data, s.retention).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	s.logger.Debug("record saved", "key", name, "retention", s.retention.String())
	return nil
}

func (s *Store) Clear(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.codec.Close()
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)
