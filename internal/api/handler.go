// Package api provides the HTTP API handlers and routing for the jobs service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"contentjobs/internal/aggregate"
	"contentjobs/internal/apperrors"
	"contentjobs/internal/health"
	"contentjobs/internal/observability"
	"contentjobs/internal/pipeline"
	"contentjobs/internal/session"
	"contentjobs/internal/stream"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// AssembleFunc computes the aggregated input dataset for a user/strategy pair
// on a cache miss.
type AssembleFunc func(ctx context.Context, userID, strategyID string, params json.RawMessage) ([]byte, error)

// Handler contains HTTP handlers for the jobs API
type Handler struct {
	svc          *pipeline.Service
	streamer     *stream.Streamer
	loader       *aggregate.Loader
	assemble     AssembleFunc
	aggregateTTL time.Duration
	metrics      *observability.Metrics
	health       *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(cfg RouterConfig) *Handler {
	return &Handler{
		svc:          cfg.Pipeline,
		streamer:     cfg.Streamer,
		loader:       cfg.Loader,
		assemble:     cfg.Assemble,
		aggregateTTL: cfg.AggregateTTL,
		metrics:      cfg.Metrics,
		health:       cfg.HealthChecker,
	}
}

// createJobRequest is the body of POST /v1/jobs.
type createJobRequest struct {
	UserID       string            `json:"userId"`
	StrategyID   string            `json:"strategyId,omitempty"`
	Params       json.RawMessage   `json:"params,omitempty"`
	ForceRefresh bool              `json:"forceRefresh,omitempty"`
	Callback     *session.Callback `json:"callback,omitempty"`
}

// createJobResponse is the 202 body of POST /v1/jobs.
type createJobResponse struct {
	SessionID                string `json:"sessionId"`
	Status                   string `json:"status"`
	EstimatedDurationSeconds int    `json:"estimatedDurationSeconds"`
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	params, err := h.assembleParams(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	sess, err := h.svc.CreateSession(r.Context(), pipeline.CreateRequest{
		UserID:   req.UserID,
		Params:   params,
		Callback: req.Callback,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, createJobResponse{
		SessionID:                sess.ID,
		Status:                   "started",
		EstimatedDurationSeconds: int(h.svc.EstimatedDuration().Seconds()),
	})
}

// assembleParams resolves the aggregated input dataset through the cache and
// folds it into the executor params. Without a strategy or assembler the raw
// params pass through untouched.
func (h *Handler) assembleParams(ctx context.Context, req *createJobRequest) (json.RawMessage, error) {
	if h.assemble == nil || req.StrategyID == "" {
		return req.Params, nil
	}

	key := aggregate.UserKey(req.UserID, req.StrategyID)
	aggregated, cached, err := h.loader.Load(ctx, key, aggregate.Options{
		TTL:          h.aggregateTTL,
		ForceRefresh: req.ForceRefresh,
	}, func(ctx context.Context) ([]byte, error) {
		return h.assemble(ctx, req.UserID, req.StrategyID, req.Params)
	})
	if err != nil {
		return nil, apperrors.Internal("assemble aggregates", err)
	}
	if h.metrics != nil {
		h.metrics.RecordCacheLookup(ctx, cached)
	}

	return json.Marshal(struct {
		Params     json.RawMessage `json:"params,omitempty"`
		Strategy   string          `json:"strategyId"`
		Aggregates json.RawMessage `json:"aggregates"`
	}{req.Params, req.StrategyID, aggregated})
}

// GetProgress handles GET /v1/jobs/{sessionId}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	sess, err := h.svc.Progress(r.Context(), sessionID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sess)
}

// DeleteJob handles DELETE /v1/jobs/{sessionId}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	if _, err := h.svc.Cancel(r.Context(), sessionID); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": sessionID,
		"status":    session.StatusCancelled,
	})
}

// StreamJob handles GET /v1/jobs/{sessionId}/stream
func (h *Handler) StreamJob(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	// Unknown sessions fail with a regular 404 before the stream commits.
	if _, err := h.svc.Progress(r.Context(), sessionID); err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.streamer.Serve(r.Context(), sessionID, w); err != nil {
		if err == stream.ErrStreamingUnsupported {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// Stream already committed; the client is gone or the frame write
		// failed. Nothing useful left to send.
		slog.DebugContext(r.Context(), "Stream ended with error", "session_id", sessionID, "error", err)
	}
}

// CacheStats handles GET /v1/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.loader.Stats(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// CacheInvalidate handles DELETE /v1/cache/{userId}
// Query params: strategyId (optional) narrows invalidation to one strategy.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	removed, err := h.loader.InvalidateUser(r.Context(), userID, r.URL.Query().Get("strategyId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"invalidated": removed})
}

// CacheCleanup handles POST /v1/cache/cleanup
func (h *Handler) CacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.loader.CleanupExpired(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if a configured backend is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
