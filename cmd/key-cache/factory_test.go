package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/key-cache/config"
	"github.com/wolfeidau/key-cache/remote/httpprovider"
	"github.com/wolfeidau/key-cache/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("bolt", func(t *testing.T) {
		st, err := newStore(ctx, config.StoreConfig{
			Type: config.StoreBolt,
			Bolt: config.BoltConfig{Path: filepath.Join(t.TempDir(), "keys.db"), Bucket: "keys"},
		}, discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		require.IsType(t, &store.InstrumentedStore{}, st)

		require.NoError(t, st.Save(ctx, "weather", store.Record{Value: "ABC", TTLMinutes: 1}))
		rec, err := st.Load(ctx, "weather")
		require.NoError(t, err)
		require.Equal(t, "ABC", rec.Value)
	})

	t.Run("memory", func(t *testing.T) {
		st, err := newStore(ctx, config.StoreConfig{Type: config.StoreMemory}, discardLogger())
		require.NoError(t, err)
		require.NoError(t, st.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := newStore(ctx, config.StoreConfig{Type: "sqlite"}, discardLogger())
		require.Error(t, err)
	})
}

func TestNewProvider(t *testing.T) {
	p, err := newProvider(config.RemoteConfig{
		Type: config.RemoteHTTP,
		HTTP: config.HTTPConfig{BaseURL: "http://localhost:8081", Token: "t"},
	})
	require.NoError(t, err)
	require.IsType(t, &httpprovider.Provider{}, p)

	p, err = newProvider(config.RemoteConfig{Type: config.RemoteOnePassword})
	require.NoError(t, err)
	require.NotNil(t, p)

	_, err = newProvider(config.RemoteConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
}

func TestGlobalsLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		g := &Globals{LogLevel: "debug", LogFormat: format}
		require.True(t, g.logger().Enabled(context.Background(), slog.LevelDebug))
	}
}
