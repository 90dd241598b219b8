package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wolfeidau/key-cache/config"
	"github.com/wolfeidau/key-cache/remote"
	"github.com/wolfeidau/key-cache/remote/httpprovider"
	"github.com/wolfeidau/key-cache/remote/opprovider"
	"github.com/wolfeidau/key-cache/store"
	"github.com/wolfeidau/key-cache/store/boltstore"
	"github.com/wolfeidau/key-cache/store/memstore"
	"github.com/wolfeidau/key-cache/store/redisstore"
	"github.com/wolfeidau/key-cache/telemetry"
)

// newStore opens the configured store wrapped with metrics.
func newStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	logger = logger.With("component", "store", "store", cfg.Type)

	var st store.Store
	switch cfg.Type {
	case config.StoreBolt:
		bs := boltstore.New(
			boltstore.WithLogger(logger),
			boltstore.WithBucket(cfg.Bolt.Bucket),
		)
		if err := bs.Open(cfg.Bolt.Path); err != nil {
			return nil, fmt.Errorf("opening bolt store: %w", err)
		}
		st = bs
	case config.StoreRedis:
		opts := []redisstore.Option{redisstore.WithLogger(logger)}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redisstore.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.Retention > 0 {
			opts = append(opts, redisstore.WithRetention(cfg.Redis.Retention))
		}
		rs, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, opts...)
		if err != nil {
			return nil, err
		}
		st = rs
	case config.StoreMemory:
		ms, err := memstore.New()
		if err != nil {
			return nil, err
		}
		st = ms
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}

	return store.NewInstrumentedStore(st, cfg.Type), nil
}

// newProvider builds the configured remote provider.
func newProvider(cfg config.RemoteConfig) (remote.Provider, error) {
	switch cfg.Type {
	case config.RemoteHTTP:
		opts := []httpprovider.Option{
			httpprovider.WithHTTPClient(&http.Client{
				Timeout:   cfg.HTTP.Timeout,
				Transport: telemetry.NewInstrumentedTransport(nil, "http"),
			}),
		}
		if cfg.HTTP.Token != "" {
			opts = append(opts, httpprovider.WithBearerToken(cfg.HTTP.Token))
		}
		return httpprovider.New(cfg.HTTP.BaseURL, opts...), nil
	case config.RemoteOnePassword:
		return opprovider.OnePassword(opprovider.Options{
			Reference: cfg.OnePassword.Reference,
			Binary:    cfg.OnePassword.Binary,
		})
	default:
		return nil, fmt.Errorf("unknown remote type %q", cfg.Type)
	}
}
