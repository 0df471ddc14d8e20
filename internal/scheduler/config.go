package scheduler

import (
	"time"

	"github.com/smallbiznis/millroll/internal/config"
)

// Config controls the posting sweeper.
type Config struct {
	RunInterval  time.Duration
	PendingAfter time.Duration
	BatchSize    int
	JobTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		PendingAfter: 5 * time.Minute,
		BatchSize:    50,
		JobTimeout:   30 * time.Second,
	}
}

// ProvideConfig reads the sweeper interval and stale threshold from the
// application config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.PostingSweepInterval,
		PendingAfter: cfg.PostingPendingAfter,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PendingAfter <= 0 {
		c.PendingAfter = defaults.PendingAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
