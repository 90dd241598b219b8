package httpprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/key-cache/remote"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	var gotAuth, gotPath string
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(KeyResponse{Name: "weather", Value: "XYZ"})
	})

	p := New(srv.URL+"/", WithBearerToken("s3cret"))
	val, err := p.Fetch(context.Background(), "weather")
	require.NoError(t, err)
	require.Equal(t, "XYZ", val)
	require.Equal(t, "Bearer s3cret", gotAuth)
	require.Equal(t, "/v1/keys/weather", gotPath)
}

func TestFetch_EscapesName(t *testing.T) {
	var gotPath string
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(KeyResponse{Value: "v"})
	})

	_, err := New(srv.URL).Fetch(context.Background(), "api.example.com/v2")
	require.NoError(t, err)
	require.Equal(t, "/v1/keys/api.example.com%2Fv2", gotPath)
}

func TestFetch_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   remote.Kind
	}{
		{"not found", http.StatusNotFound, remote.KindNotFound},
		{"unavailable", http.StatusServiceUnavailable, remote.KindUnavailable},
		{"rate limited", http.StatusTooManyRequests, remote.KindUnavailable},
		{"forbidden", http.StatusForbidden, remote.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := New(srv.URL).Fetch(context.Background(), "weather")
			require.Error(t, err)
			require.Equal(t, tt.want, remote.KindOf(err))

			var se *remote.StatusError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.status, se.Status)
		})
	}
}

func TestFetch_EmptyValueIsNotFound(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(KeyResponse{Name: "weather"})
	})

	_, err := New(srv.URL).Fetch(context.Background(), "weather")
	require.ErrorIs(t, err, remote.ErrNotFound)
}

func TestFetch_BadJSON(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := New(srv.URL).Fetch(context.Background(), "weather")
	require.Error(t, err)
	require.Equal(t, remote.KindOther, remote.KindOf(err))
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr).Fetch(context.Background(), "weather")
	require.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL).Fetch(ctx, "weather")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, remote.KindUnavailable, remote.KindOf(err))
}
