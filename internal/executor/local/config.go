package local

import (
	"strings"
	"time"

	"contentjobs/internal/config"
)

// Config holds configuration for the in-process executor.
type Config struct {
	StageNames    []string      // ordered stage names, one per pipeline step
	StageDuration time.Duration // simulated wall-clock duration per stage
}

// LoadConfigFromEnv loads executor configuration from environment variables.
func LoadConfigFromEnv() Config {
	var names []string
	if raw := config.GetEnv("LOCAL_STAGE_NAMES", ""); raw != "" {
		names = strings.Split(raw, ",")
	}
	return Config{
		StageNames:    names,
		StageDuration: config.GetDurationEnv("LOCAL_STAGE_DURATION", 2*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if len(c.StageNames) == 0 {
		c.StageNames = []string{"analyze", "outline", "draft", "finalize"}
	}
	if c.StageDuration <= 0 {
		c.StageDuration = 2 * time.Second
	}
	return c
}
