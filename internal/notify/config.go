package notify

import (
	"time"

	"contentjobs/internal/config"
)

// Config holds notifier configuration.
type Config struct {
	BufferSize  int           // delivery queue capacity
	Workers     int           // concurrent delivery workers
	HTTPTimeout time.Duration // per-request timeout
	MaxRetries  int           // retry attempts per delivery
	MaxRequeues int           // requeues allowed when a circuit is open
}

// LoadConfig loads notifier configuration from environment variables.
func LoadConfig() Config {
	return Config{
		BufferSize:  config.GetIntEnv("NOTIFY_BUFFER_SIZE", 1000),
		Workers:     config.GetIntEnv("NOTIFY_WORKERS", 4),
		HTTPTimeout: config.GetDurationEnv("NOTIFY_HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:  config.GetIntEnv("NOTIFY_MAX_RETRIES", 3),
		MaxRequeues: config.GetIntEnv("NOTIFY_MAX_REQUEUES", 10),
	}
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = 10
	}
	return c
}
