// Package server exposes a key cache over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	keycache "github.com/wolfeidau/key-cache"
	"github.com/wolfeidau/key-cache/telemetry"
)

const (
	// DefaultTTLMinutes applies when a request does not name a TTL.
	DefaultTTLMinutes = 60

	// maxNotificationSize caps the notification request body.
	maxNotificationSize = 64 << 10
)

// KeyService is the cache behaviour the server exposes.
type KeyService interface {
	GetKey(ctx context.Context, name string, ttlMinutes int) (string, error)
	RefreshKey(ctx context.Context, name, value string, ttlMinutes int) error
}

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// AuthToken enables Bearer authentication when set.
	AuthToken string

	// DefaultTTLMinutes is used when a lookup has no ttl parameter.
	DefaultTTLMinutes int

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the key cache.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
	keys       KeyService
}

// KeyResponse is returned by a key lookup.
type KeyResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notification is the body of an out-of-band key update.
type Notification struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	TTLMinutes int    `json:"ttl_minutes"`
}

// New creates a new server serving keys.
func New(cfg Config, keys KeyService) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.DefaultTTLMinutes <= 0 {
		cfg.DefaultTTLMinutes = DefaultTTLMinutes
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger,
		keys:   keys,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.loggingMiddleware(s.authMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // lookups may wait on a slow remote
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	mux.HandleFunc("GET /v1/keys/{name}", s.handleGetKey)
	mux.HandleFunc("POST /v1/notifications", s.handleNotification)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	ttl := s.config.DefaultTTLMinutes
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "ttl must be a non-negative integer", "")
			return
		}
		ttl = v
	}

	value, err := s.keys.GetKey(r.Context(), name, ttl)
	if err != nil {
		var rue *keycache.RemoteUnavailableError
		if errors.As(err, &rue) {
			writeError(w, http.StatusServiceUnavailable, err.Error(), rue.Kind.String())
			return
		}
		s.logger.Error("unexpected lookup error", "key", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, KeyResponse{Name: name, Value: value})
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	var n Notification
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding notification: %v", err), "")
		return
	}
	if strings.TrimSpace(n.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", "")
		return
	}
	if n.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required", "")
		return
	}
	if n.TTLMinutes <= 0 {
		n.TTLMinutes = s.config.DefaultTTLMinutes
	}

	telemetry.SetCacheResult(r, telemetry.CacheNA)

	if err := s.keys.RefreshKey(r.Context(), n.Name, n.Value, n.TTLMinutes); err != nil {
		s.logger.Error("refresh failed", "key", n.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		// Inject request tags so the cache can report hit/miss/stale.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)
		tags.Endpoint = deriveEndpoint(r.URL.Path)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"endpoint", tags.Endpoint,

			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,

			"duration_ms", duration.Milliseconds(),
			"duration", duration.String(),

			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if tags.CacheResult != "" {
			attrs = append(attrs, "cache_result", string(tags.CacheResult))
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, duration)
	})
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "address", s.config.Address, "auth", s.config.AuthToken != "")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// deriveEndpoint classifies the request path for logs and metrics.
func deriveEndpoint(path string) string {
	switch {
	case path == "/health":
		return "health"
	case path == "/metrics":
		return "metrics"
	case strings.HasPrefix(path, "/v1/keys/"):
		return "get_key"
	case path == "/v1/notifications":
		return "notify"
	default:
		return "unknown"
	}
}
