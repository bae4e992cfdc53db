// jobs-service is the HTTP API server for content-generation sessions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"contentjobs/internal/aggregate"
	"contentjobs/internal/api"
	"contentjobs/internal/cache"
	"contentjobs/internal/config"
	dockerexec "contentjobs/internal/executor/docker"
	"contentjobs/internal/executor/local"
	"contentjobs/internal/health"
	"contentjobs/internal/notify"
	"contentjobs/internal/observability"
	"contentjobs/internal/pipeline"
	"contentjobs/internal/results"
	"contentjobs/internal/session"
	"contentjobs/internal/stream"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	pipelineCfg := config.LoadPipelineConfig()
	reaperCfg := config.LoadReaperConfig()
	streamCfg := config.LoadStreamConfig()
	notifyCfg := notify.LoadConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	readiness := make(map[string]health.ReadinessChecker)

	// Aggregated-data cache backend
	var cacheBackend cache.Cache
	switch svcCfg.CacheBackend {
	case config.BackendRedis:
		redisCache, err := cache.NewRedis(ctx, svcCfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()
		readiness["redis"] = redisCache
		cacheBackend = redisCache
		slog.Info("Using Redis cache backend")
	default:
		cacheBackend = cache.NewMemory()
	}

	// Durable result store backend
	var resultStore results.Store
	switch svcCfg.ResultsBackend {
	case config.BackendPostgres:
		pg, err := results.NewPostgresStore(ctx, svcCfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pg.Close()
		readiness["postgres"] = pg
		resultStore = pg
		slog.Info("Using Postgres result store")
	default:
		resultStore = results.NewMemoryStore()
	}

	// Stage executor backend
	var executor pipeline.StageExecutor
	switch svcCfg.Executor {
	case config.BackendDocker:
		dockerExecutor, err := dockerexec.NewExecutor(ctx, dockerexec.LoadConfigFromEnv())
		if err != nil {
			return fmt.Errorf("failed to create docker executor: %w", err)
		}
		defer dockerExecutor.Close()
		readiness["docker"] = dockerExecutor
		executor = dockerExecutor
		slog.Info("Connected to Docker daemon")
	default:
		executor = local.NewExecutor(local.LoadConfigFromEnv())
	}

	// Lifecycle webhook notifier
	notifier := notify.NewQueueNotifier(notifyCfg, slog.Default(), metrics)

	// Session store and stale-session reaper
	store := session.NewMemoryStore()
	reaper := session.NewReaper(store, reaperCfg)
	go reaper.Run(ctx)

	// Pipeline orchestrator
	svc := pipeline.NewService(pipeline.Options{
		Store:    store,
		Reaper:   reaper,
		Executor: executor,
		Results:  resultStore,
		Notifier: notifier,
		Config:   pipelineCfg,
		Logger:   slog.Default(),
		Metrics:  metrics,
	})

	// SSE gateway and aggregate loader
	streamer := stream.NewStreamer(svc, streamCfg, slog.Default(), metrics)
	loader := aggregate.NewLoader(cacheBackend)

	// Create health checker
	healthChecker := health.NewChecker(readiness)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Pipeline:      svc,
		Streamer:      streamer,
		Loader:        loader,
		Assemble:      assembleAggregates,
		AggregateTTL:  config.GetDurationEnv("AGGREGATE_TTL", 15*time.Minute),
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server. WriteTimeout is generous because SSE streams hold
	// their response open for the life of a session.
	apiServer := &http.Server{
		Addr:        ":" + svcCfg.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish
	// in-flight requests and close open streams
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Stop in-flight pipelines. Sessions are in-process; anything
	// still running cannot outlive the service.
	slog.Info("Stopping in-flight pipelines")
	pipelineCtx, pipelineCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer pipelineCancel()
	if err := svc.Close(pipelineCtx); err != nil {
		slog.Warn("Pipeline shutdown error", "error", err)
	}

	// Phase 4: Drain the webhook notifier so terminal events get delivered
	slog.Info("Draining webhook notifier")
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifierCancel()
	if err := notifier.Close(notifierCtx); err != nil {
		slog.Warn("Notifier shutdown error", "error", err)
	}

	// Log final notifier stats
	stats := notifier.Stats()
	slog.Info("Notifier stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}

// assembleAggregates builds the aggregated input dataset for a user/strategy
// pair on a cache miss. The dataset is synthesized from the request here; a
// deployment integrating external data services replaces this function.
func assembleAggregates(ctx context.Context, userID, strategyID string, params json.RawMessage) ([]byte, error) {
	return json.Marshal(map[string]any{
		"userId":      userID,
		"strategyId":  strategyID,
		"params":      params,
		"assembledAt": time.Now().UTC().Format(time.RFC3339),
	})
}
