// Command key-cache serves named API keys from a local cache backed by a
// remote secret source.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-multierror"
	"github.com/lmittmann/tint"

	keycache "github.com/wolfeidau/key-cache"
	"github.com/wolfeidau/key-cache/config"
	"github.com/wolfeidau/key-cache/server"
	"github.com/wolfeidau/key-cache/telemetry"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Path to a config file (default: key-cache.yaml in . or /etc/key-cache)." type:"path" env:"KEYCACHE_CONFIG"`
	LogLevel  string `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	LogFormat string `help:"Log format." enum:"text,json" default:"text"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve   ServeCmd         `cmd:"" help:"Run the HTTP key service."`
	Get     GetCmd           `cmd:"" help:"Print the value of a key."`
	Refresh RefreshCmd       `cmd:"" help:"Store a new value for a key without asking the remote."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("key-cache"),
		kong.Description("Coalescing, expiry-aware API key cache."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func (g *Globals) logger() *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(g.LogLevel))

	var handler slog.Handler
	switch g.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	}
	return slog.New(handler)
}

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	Address string `help:"Address to listen on (overrides server.address)."`
}

func (c *ServeCmd) Run(g *Globals) error {
	logger := g.logger()
	slog.SetDefault(logger)

	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	if c.Address != "" {
		cfg.Server.Address = c.Address
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "key-cache",
		ServiceVersion:   version,
		OTLPEndpoint:     cfg.Metrics.OTLPEndpoint,
		EnablePrometheus: cfg.Metrics.Prometheus,
		FlushInterval:    cfg.Metrics.FlushInterval,
	})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}

	st, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg.Remote)
	if err != nil {
		_ = st.Close()
		return err
	}

	cache := keycache.New(st, provider,
		keycache.WithLogger(logger.With("component", "keycache")),
		keycache.WithFetchTimeout(cfg.Cache.FetchTimeout),
	)

	srv := server.New(server.Config{
		Address:           cfg.Server.Address,
		AuthToken:         cfg.Server.AuthToken,
		DefaultTTLMinutes: cfg.Server.DefaultTTLMinutes,
		Logger:            logger.With("component", "server"),
	}, cache)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("key-cache started",
		"address", srv.Address(),
		"store", cfg.Store.Type,
		"remote", cfg.Remote.Type,
		"version", version,
	)

	var result *multierror.Error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-errCh:
		result = multierror.Append(result, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutting down server: %w", err))
	}
	if err := st.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing store: %w", err))
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutting down metrics: %w", err))
	}

	return result.ErrorOrNil()
}

// GetCmd prints a key using the configured store and remote.
type GetCmd struct {
	Name string `arg:"" help:"Key name."`
	TTL  int    `help:"TTL in minutes for a freshly fetched value (default: server.default_ttl_minutes)."`
}

func (c *GetCmd) Run(g *Globals) (err error) {
	logger := g.logger()

	cache, closeStore, cfg, err := openCache(g, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	ttl := c.TTL
	if ttl <= 0 {
		ttl = cfg.Server.DefaultTTLMinutes
	}

	value, err := cache.GetKey(context.Background(), c.Name, ttl)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

// RefreshCmd writes a key straight into the store.
type RefreshCmd struct {
	Name  string `arg:"" help:"Key name."`
	Value string `arg:"" help:"New value."`
	TTL   int    `help:"TTL in minutes (default: server.default_ttl_minutes)."`
}

func (c *RefreshCmd) Run(g *Globals) (err error) {
	logger := g.logger()

	cache, closeStore, cfg, err := openCache(g, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	ttl := c.TTL
	if ttl <= 0 {
		ttl = cfg.Server.DefaultTTLMinutes
	}
	return cache.RefreshKey(context.Background(), c.Name, c.Value, ttl)
}

func openCache(g *Globals, logger *slog.Logger) (*keycache.Cache, func() error, *config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := newStore(context.Background(), cfg.Store, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := newProvider(cfg.Remote)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	cache := keycache.New(st, provider,
		keycache.WithLogger(logger),
		keycache.WithFetchTimeout(cfg.Cache.FetchTimeout),
	)
	return cache, st.Close, cfg, nil
}
