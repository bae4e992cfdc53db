package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/sessions take
// - Traffic: Request/session throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (active sessions/streams)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Session metrics (Latency, Traffic, Errors, Saturation)
	SessionDuration    metric.Float64Histogram
	SessionsTotal      metric.Int64Counter
	SessionErrorsTotal metric.Int64Counter
	SessionsActive     metric.Int64UpDownCounter

	// Stream metrics (Saturation)
	StreamsActive metric.Int64UpDownCounter

	// Cache metrics (Traffic)
	CacheHitsTotal   metric.Int64Counter
	CacheMissesTotal metric.Int64Counter

	// Webhook metrics (Traffic, Errors)
	WebhooksDelivered metric.Int64Counter
	WebhooksFailed    metric.Int64Counter
	WebhooksDropped   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("contentjobs")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Session metrics
	m.SessionDuration, err = meter.Float64Histogram(
		"session_duration_seconds",
		metric.WithDescription("Pipeline session duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionsTotal, err = meter.Int64Counter(
		"sessions_total",
		metric.WithDescription("Total number of sessions created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionErrorsTotal, err = meter.Int64Counter(
		"session_errors_total",
		metric.WithDescription("Total number of sessions that ended in error"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionsActive, err = meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Number of currently running sessions (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Stream metrics
	m.StreamsActive, err = meter.Int64UpDownCounter(
		"streams_active",
		metric.WithDescription("Number of open SSE progress streams (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Cache metrics
	m.CacheHitsTotal, err = meter.Int64Counter(
		"cache_hits_total",
		metric.WithDescription("Total aggregate cache hits"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheMissesTotal, err = meter.Int64Counter(
		"cache_misses_total",
		metric.WithDescription("Total aggregate cache misses"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Webhook metrics
	m.WebhooksDelivered, err = meter.Int64Counter(
		"webhooks_delivered_total",
		metric.WithDescription("Total lifecycle events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhooksFailed, err = meter.Int64Counter(
		"webhooks_failed_total",
		metric.WithDescription("Total lifecycle events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhooksDropped, err = meter.Int64Counter(
		"webhooks_dropped_total",
		metric.WithDescription("Total lifecycle events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// SessionStarted records a new session being created.
func (m *Metrics) SessionStarted() {
	ctx := context.Background()
	m.SessionsTotal.Add(ctx, 1)
	m.SessionsActive.Add(ctx, 1)
}

// SessionFinished records a session reaching a terminal status.
func (m *Metrics) SessionFinished(status string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(sessionStatusAttr(status))
	m.SessionDuration.Record(ctx, duration.Seconds(), attrs)
	m.SessionsActive.Add(ctx, -1)

	if status == "error" {
		m.SessionErrorsTotal.Add(ctx, 1, attrs)
	}
}

// StreamOpened records an SSE stream opening.
func (m *Metrics) StreamOpened() {
	m.StreamsActive.Add(context.Background(), 1)
}

// StreamClosed records an SSE stream closing.
func (m *Metrics) StreamClosed() {
	m.StreamsActive.Add(context.Background(), -1)
}

// RecordCacheLookup records one aggregate cache lookup outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		m.CacheHitsTotal.Add(ctx, 1)
		return
	}
	m.CacheMissesTotal.Add(ctx, 1)
}

// WebhookDelivered records a successful lifecycle event delivery.
func (m *Metrics) WebhookDelivered(eventType string) {
	m.WebhooksDelivered.Add(context.Background(), 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// WebhookFailed records a lifecycle event that failed after retries.
func (m *Metrics) WebhookFailed(eventType string) {
	m.WebhooksFailed.Add(context.Background(), 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// WebhookDropped records a dropped lifecycle event.
func (m *Metrics) WebhookDropped(eventType string) {
	m.WebhooksDropped.Add(context.Background(), 1, metric.WithAttributes(eventTypeAttr(eventType)))
}
