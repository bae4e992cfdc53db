// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Backend selectors.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDocker   = "docker"
)

// ServiceConfig holds configuration for the jobs service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	CacheBackend   string // memory | redis
	ResultsBackend string // memory | postgres
	Executor       string // name of the stage executor backend ("" = wired in code)

	RedisURL    string // required when CacheBackend=redis
	PostgresURL string // required when ResultsBackend=postgres
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		CacheBackend:      GetEnv("CACHE_BACKEND", BackendMemory),
		ResultsBackend:    GetEnv("RESULTS_BACKEND", BackendMemory),
		Executor:          GetEnv("EXECUTOR", ""),
		RedisURL:          GetEnv("REDIS_URL", ""),
		PostgresURL:       GetEnv("DATABASE_URL", ""),
	}
}

// PipelineConfig holds configuration for the pipeline orchestrator.
type PipelineConfig struct {
	// StageEstimate is the per-stage duration used for the estimatedDurationSeconds
	// hint returned when a session is created. Purely advisory.
	StageEstimate time.Duration

	// HardTimeout bounds the wall-clock runtime of one session's pipeline.
	// Zero disables the bound; the caller's polling deadline is then the only
	// protection against a stuck executor.
	HardTimeout time.Duration
}

// LoadPipelineConfig loads pipeline configuration from environment variables.
func LoadPipelineConfig() PipelineConfig {
	return PipelineConfig{
		StageEstimate: GetDurationEnv("PIPELINE_STAGE_ESTIMATE", 10*time.Second),
		HardTimeout:   GetDurationEnv("PIPELINE_HARD_TIMEOUT", 0),
	}
}

// ReaperConfig holds configuration for stale-session cleanup.
type ReaperConfig struct {
	MaxAge         time.Duration // sessions older than this are removed regardless of status
	TerminalMaxAge time.Duration // terminal sessions older than this are removed
	SweepInterval  time.Duration // background sweep cadence (0 disables the timer)
}

// LoadReaperConfig loads reaper configuration from environment variables.
func LoadReaperConfig() ReaperConfig {
	return ReaperConfig{
		MaxAge:         GetDurationEnv("REAPER_MAX_AGE", time.Hour),
		TerminalMaxAge: GetDurationEnv("REAPER_TERMINAL_MAX_AGE", 10*time.Minute),
		SweepInterval:  GetDurationEnv("REAPER_SWEEP_INTERVAL", time.Minute),
	}
}

// StreamConfig holds configuration for the SSE gateway.
type StreamConfig struct {
	HeartbeatInterval time.Duration // cadence of synthetic liveness ticks
	HeartbeatStep     float64       // displayed-percentage nudge per tick
	HeartbeatCeiling  float64       // synthetic progress never reaches this value
	PollInterval      time.Duration // how often the gateway re-reads the snapshot
}

// LoadStreamConfig loads stream configuration from environment variables.
func LoadStreamConfig() StreamConfig {
	return StreamConfig{
		HeartbeatInterval: GetDurationEnv("STREAM_HEARTBEAT_INTERVAL", 2*time.Second),
		HeartbeatStep:     GetFloatEnv("STREAM_HEARTBEAT_STEP", 3),
		HeartbeatCeiling:  GetFloatEnv("STREAM_HEARTBEAT_CEILING", 90),
		PollInterval:      GetDurationEnv("STREAM_POLL_INTERVAL", 250*time.Millisecond),
	}
}
