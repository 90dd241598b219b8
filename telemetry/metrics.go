package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/wolfeidau/key-cache"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram

	lookupsTotal        metric.Int64Counter
	remoteFetchTotal    metric.Int64Counter
	remoteFetchDuration metric.Float64Histogram
	coalescedWaitsTotal metric.Int64Counter
	refreshesTotal      metric.Int64Counter

	storeOpsTotal   metric.Int64Counter
	storeOpDuration metric.Float64Histogram

	upstreamRequestsTotal metric.Int64Counter
	upstreamDuration      metric.Float64Histogram
	upstreamBytesTotal    metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "key-cache"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler

	globalMetrics = m
	return nil
}

// newMetrics creates every instrument on meter.
func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.requestsTotal, err = meter.Int64Counter(
		"key_cache_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"key_cache_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	if m.lookupsTotal, err = meter.Int64Counter(
		"key_cache_lookups_total",
		metric.WithDescription("Key lookups by result (hit, miss, stale, error)"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if m.remoteFetchTotal, err = meter.Int64Counter(
		"key_cache_remote_fetch_total",
		metric.WithDescription("Remote key fetches by outcome"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}

	if m.remoteFetchDuration, err = meter.Float64Histogram(
		"key_cache_remote_fetch_duration_seconds",
		metric.WithDescription("Duration of remote key fetches"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	if m.coalescedWaitsTotal, err = meter.Int64Counter(
		"key_cache_coalesced_waits_total",
		metric.WithDescription("Lookups that received the result of a shared in-flight fetch"),
		metric.WithUnit("{wait}"),
	); err != nil {
		return nil, err
	}

	if m.refreshesTotal, err = meter.Int64Counter(
		"key_cache_refreshes_total",
		metric.WithDescription("Out-of-band key refreshes by outcome"),
		metric.WithUnit("{refresh}"),
	); err != nil {
		return nil, err
	}

	if m.storeOpsTotal, err = meter.Int64Counter(
		"key_cache_store_ops_total",
		metric.WithDescription("Local store operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}

	if m.storeOpDuration, err = meter.Float64Histogram(
		"key_cache_store_op_duration_seconds",
		metric.WithDescription("Local store operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	if m.upstreamRequestsTotal, err = meter.Int64Counter(
		"key_cache_upstream_http_requests_total",
		metric.WithDescription("HTTP requests made to remote key providers"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.upstreamDuration, err = meter.Float64Histogram(
		"key_cache_upstream_http_duration_seconds",
		metric.WithDescription("Duration of HTTP requests to remote key providers"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	if m.upstreamBytesTotal, err = meter.Int64Counter(
		"key_cache_upstream_http_bytes_total",
		metric.WithDescription("Bytes read from remote key providers"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordHTTP records HTTP request metrics.
// Endpoint and cache result are read from request tags set by handlers.
func RecordHTTP(ctx context.Context, r *http.Request, status int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	endpoint := "unknown"
	cacheResult := string(CacheBypass)
	if tags := GetTags(r); tags != nil {
		if tags.Endpoint != "" {
			endpoint = tags.Endpoint
		}
		if tags.CacheResult != "" {
			cacheResult = string(tags.CacheResult)
		}
	}

	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status_class", StatusClass(status)),
		attribute.String("cache_result", cacheResult),
	)
	globalMetrics.requestsTotal.Add(ctx, 1, attrs)
	globalMetrics.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLookup records the result of a single key lookup.
func RecordLookup(ctx context.Context, result CacheResult) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.lookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", string(result)),
	))
}

// RecordRemoteFetch records a completed remote fetch. Outcome is "success"
// or the failure kind label.
func RecordRemoteFetch(ctx context.Context, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.remoteFetchTotal.Add(ctx, 1, attrs)
	globalMetrics.remoteFetchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCoalescedWait records a lookup served by a fetch shared with other callers.
func RecordCoalescedWait(ctx context.Context, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.coalescedWaitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordRefresh records an out-of-band key refresh.
func RecordRefresh(ctx context.Context, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.refreshesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordStoreOp records a local store operation.
func RecordStoreOp(ctx context.Context, store, op, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	globalMetrics.storeOpsTotal.Add(ctx, 1, attrs)
	globalMetrics.storeOpDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordUpstreamRequest records an HTTP request made to a remote provider.
func RecordUpstreamRequest(ctx context.Context, provider string, duration time.Duration, bytesRead int64, outcome string) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	globalMetrics.upstreamRequestsTotal.Add(ctx, 1, attrs)
	globalMetrics.upstreamDuration.Record(ctx, duration.Seconds(), attrs)
	if bytesRead > 0 {
		globalMetrics.upstreamBytesTotal.Add(ctx, bytesRead, attrs)
	}
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// StatusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx).
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
