package api

import (
	"net/http"
	"time"

	"contentjobs/internal/aggregate"
	"contentjobs/internal/health"
	"contentjobs/internal/observability"
	"contentjobs/internal/pipeline"
	"contentjobs/internal/stream"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Pipeline      *pipeline.Service
	Streamer      *stream.Streamer
	Loader        *aggregate.Loader
	Assemble      AssembleFunc // nil disables aggregate assembly
	AggregateTTL  time.Duration
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Job and cache endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/jobs", authMiddleware(http.HandlerFunc(handler.CreateJob)))
	mux.Handle("GET /v1/jobs/{sessionId}/progress", authMiddleware(http.HandlerFunc(handler.GetProgress)))
	mux.Handle("GET /v1/jobs/{sessionId}/stream", authMiddleware(http.HandlerFunc(handler.StreamJob)))
	mux.Handle("DELETE /v1/jobs/{sessionId}", authMiddleware(http.HandlerFunc(handler.DeleteJob)))

	mux.Handle("GET /v1/cache/stats", authMiddleware(http.HandlerFunc(handler.CacheStats)))
	mux.Handle("DELETE /v1/cache/{userId}", authMiddleware(http.HandlerFunc(handler.CacheInvalidate)))
	mux.Handle("POST /v1/cache/cleanup", authMiddleware(http.HandlerFunc(handler.CacheCleanup)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
