package jobs

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
)

// Default configuration values
const (
	// DefaultWorkerCount defines the default number of concurrent workers
	DefaultWorkerCount = 4

	// DefaultQueueSize defines how many jobs may wait for a worker
	DefaultQueueSize = 64

	// DefaultMaxRetries defines the default number of retry attempts for failed jobs
	DefaultMaxRetries = 2

	// DefaultRetryBackoffMs defines the default backoff duration between retries in milliseconds
	DefaultRetryBackoffMs = 1000

	// DefaultStatusInterval defines how often the dispatcher reports its status
	DefaultStatusInterval = 5 * time.Minute
)

// Config holds the dispatcher configuration.
// Environment variables:
//   - JOBS_WORKERS, JOBS_QUEUE_SIZE, JOBS_MAX_RETRIES, JOBS_RETRY_BACKOFF_MS, JOBS_STATUS_INTERVAL
type Config struct {
	// WorkerCount is the number of concurrent workers
	WorkerCount int
	// QueueSize bounds the number of jobs waiting for a worker
	QueueSize int
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// RetryBackoffMs is the base retry backoff in milliseconds
	RetryBackoffMs int
	// StatusInterval defines how often the dispatcher logs its status
	StatusInterval time.Duration

	Logger *logrus.Logger
}

// NewConfig reads the dispatcher configuration from the environment.
func NewConfig(logger *logrus.Logger) (*Config, error) {
	config := &Config{
		WorkerCount:    env.Int("JOBS_WORKERS", DefaultWorkerCount),
		QueueSize:      env.Int("JOBS_QUEUE_SIZE", DefaultQueueSize),
		MaxRetries:     env.Int("JOBS_MAX_RETRIES", DefaultMaxRetries),
		RetryBackoffMs: env.Int("JOBS_RETRY_BACKOFF_MS", DefaultRetryBackoffMs),
		StatusInterval: env.Duration("JOBS_STATUS_INTERVAL", DefaultStatusInterval),
		Logger:         logger,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	return nil
}
