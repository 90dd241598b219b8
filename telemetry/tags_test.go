package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTaggedRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	return InjectTags(r)
}

func TestInjectTags_DefaultsCacheResultToBypass(t *testing.T) {
	r := newTaggedRequest()
	tags := GetTags(r)
	require.NotNil(t, tags)
	require.Equal(t, CacheBypass, tags.CacheResult)
}

func TestGetTags_NilWithoutInject(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	require.Nil(t, GetTags(r))
}

func TestSetCacheResult(t *testing.T) {
	r := newTaggedRequest()
	SetCacheResult(r, CacheHit)
	require.Equal(t, CacheHit, GetTags(r).CacheResult)
}

func TestSetCacheResultContext(t *testing.T) {
	r := newTaggedRequest()
	SetCacheResultContext(r.Context(), CacheStale)
	require.Equal(t, CacheStale, GetTags(r).CacheResult)
}

func TestSetCacheResultContext_NoopWithoutTags(t *testing.T) {
	SetCacheResultContext(context.Background(), CacheMiss) // should not panic
	require.Nil(t, TagsFromContext(context.Background()))
}

func TestSetEndpoint(t *testing.T) {
	r := newTaggedRequest()
	SetEndpoint(r, "get_key")
	require.Equal(t, "get_key", GetTags(r).Endpoint)
}

func TestTagsMutationVisibleThroughPointer(t *testing.T) {
	r := newTaggedRequest()
	tags := GetTags(r)

	SetCacheResult(r, CacheMiss)
	SetEndpoint(r, "notify")

	require.Equal(t, CacheMiss, tags.CacheResult)
	require.Equal(t, "notify", tags.Endpoint)
}
