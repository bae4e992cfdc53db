package docker

import (
	"strings"
	"time"

	"contentjobs/internal/config"
)

// Config holds configuration for the container stage executor.
type Config struct {
	Image       string        // image run for every stage
	Command     string        // optional shell command overriding the image entrypoint
	Steps       int           // number of pipeline stages
	CPU         float64       // CPU limit per stage container
	MemoryMB    int64         // memory limit per stage container in MB
	StopTimeout time.Duration // grace period when stopping a stage container
	ExtraHosts  []string      // extra hosts for containers (e.g., ["api.test:host-gateway"])
}

// LoadConfigFromEnv loads executor configuration from environment variables.
func LoadConfigFromEnv() Config {
	var extraHosts []string
	if hosts := config.GetEnv("EXTRA_HOSTS", ""); hosts != "" {
		extraHosts = strings.Split(hosts, ",")
	}

	return Config{
		Image:       config.GetEnv("STAGE_IMAGE", "alpine:latest"),
		Command:     config.GetEnv("STAGE_COMMAND", ""),
		Steps:       config.GetIntEnv("STAGE_STEPS", 4),
		CPU:         config.GetFloatEnv("STAGE_CPU", 1),
		MemoryMB:    int64(config.GetIntEnv("STAGE_MEMORY_MB", 512)),
		StopTimeout: config.GetDurationEnv("STAGE_STOP_TIMEOUT", 10*time.Second),
		ExtraHosts:  extraHosts,
	}
}
