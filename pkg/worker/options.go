package worker

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Config holds worker loop configuration.
type Config struct {
	// BatchSize is jobs claimed per iteration. The conservative default is
	// one: one automation session per job.
	BatchSize int

	// MaxAttempts is the poison-job escape valve: a job failing at or past
	// this attempt count is abandoned rather than retried forever.
	MaxAttempts int

	// Backoff is the fixed failure window. Each consecutive failure
	// re-arms the same window; no exponential growth.
	Backoff time.Duration

	// IdleSleep is how long to wait after finding the queue empty.
	IdleSleep time.Duration

	// JobPause is the pause between consecutive jobs in a batch.
	JobPause time.Duration

	// SessionTimeout bounds one extraction session; expiry is treated as a
	// session error and the job goes back to failed with backoff.
	SessionTimeout time.Duration

	// StaleCheckInterval is how often expired leases are swept.
	StaleCheckInterval time.Duration

	// DrainAndExit stops the loop when the queue is empty instead of
	// polling, for one-shot runs.
	DrainAndExit bool

	WorkerID string
	Logger   *slog.Logger
}

func defaultConfig() Config {
	return Config{
		BatchSize:          1,
		MaxAttempts:        3,
		Backoff:            5 * time.Minute,
		IdleSleep:          2 * time.Second,
		JobPause:           2 * time.Second,
		SessionTimeout:     5 * time.Minute,
		StaleCheckInterval: time.Minute,
		WorkerID:           uuid.New().String(),
		Logger:             slog.Default(),
	}
}

// Option configures a Loop.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// BatchSize sets jobs claimed per iteration.
func BatchSize(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.BatchSize = n
		}
	})
}

// MaxAttempts sets the abandonment threshold.
func MaxAttempts(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	})
}

// Backoff sets the fixed failure window.
func Backoff(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.Backoff = d })
}

// IdleSleep sets the empty-queue pause.
func IdleSleep(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.IdleSleep = d })
}

// JobPause sets the pause between jobs.
func JobPause(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.JobPause = d })
}

// SessionTimeout bounds one extraction session.
func SessionTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.SessionTimeout = d })
}

// DrainAndExit stops the loop once the queue is empty.
func DrainAndExit() Option {
	return optionFunc(func(c *Config) { c.DrainAndExit = true })
}

// WorkerID overrides the generated claimant id.
func WorkerID(id string) Option {
	return optionFunc(func(c *Config) { c.WorkerID = id })
}

// Logger sets the loop logger.
func Logger(logger *slog.Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = logger })
}
