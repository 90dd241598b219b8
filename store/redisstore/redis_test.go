//go:build integration

package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/key-cache/store"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	addr := os.Getenv("KEYCACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KEYCACHE_TEST_REDIS_ADDR not set")
	}
	prefix := fmt.Sprintf("key-cache-test:%s:", uuid.NewString())
	s, err := Dial(context.Background(), Config{Addr: addr}, append([]Option{WithPrefix(prefix)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoadClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, "weather")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Save(ctx, "weather", store.Record{Value: "ABC", SavedAt: time.Now(), TTLMinutes: 60}))

	got, err := s.Load(ctx, "weather")
	require.NoError(t, err)
	require.Equal(t, "ABC", got.Value)
	require.Equal(t, 60, got.TTLMinutes)

	require.NoError(t, s.Clear(ctx, "weather"))
	_, err = s.Load(ctx, "weather")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ExpiredRecordSurvives(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := store.Record{Value: "OLD", SavedAt: time.Now().Add(-2 * time.Hour), TTLMinutes: 1}
	require.NoError(t, s.Save(ctx, "weather", old))

	got, err := s.Load(ctx, "weather")
	require.NoError(t, err)
	require.True(t, got.Expired(time.Now()))
	require.Equal(t, "OLD", got.Value)
}

func TestStore_UndecodableRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.client.Set(ctx, s.key("broken"), "garbage", 0).Err())

	_, err := s.Load(ctx, "broken")
	require.ErrorIs(t, err, store.ErrDecode)
}

func TestStore_Retention(t *testing.T) {
	s := newTestStore(t, WithRetention(time.Minute))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "weather", store.Record{Value: "ABC", TTLMinutes: 1}))

	ttl, err := s.client.TTL(ctx, s.key("weather")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
