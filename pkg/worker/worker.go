// Package worker provides the queue consumer: claim a batch, run one
// extraction session per job, deliver the record, report the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lienharvest/pkg/core"
	"lienharvest/pkg/sink"
)

// Fetcher runs the per-job extraction session.
type Fetcher interface {
	FetchDetail(ctx context.Context, site, fileNumber, filingDate string) (core.LienRecord, error)
}

// Loop is a single logical consumer. Horizontal scale-out is achieved by
// running more processes against the same store; the store's claim
// atomicity keeps them from colliding.
type Loop struct {
	store  core.Store
	fetch  Fetcher
	sink   sink.Sink
	config Config
	logger *slog.Logger

	lastStaleCheck time.Time
}

// NewLoop creates a worker loop.
func NewLoop(store core.Store, fetch Fetcher, s sink.Sink, opts ...Option) *Loop {
	config := defaultConfig()
	for _, opt := range opts {
		opt.apply(&config)
	}
	return &Loop{
		store:  store,
		fetch:  fetch,
		sink:   s,
		config: config,
		logger: config.Logger,
	}
}

// Run processes jobs until ctx is cancelled, or until the queue drains
// when the loop was built with DrainAndExit.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("worker start", "worker_id", l.config.WorkerID, "batch_size", l.config.BatchSize)

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("worker stop", "worker_id", l.config.WorkerID)
			return err
		}

		l.maybeReleaseStale(ctx)

		jobs, err := l.store.ClaimBatch(ctx, l.config.BatchSize, l.config.WorkerID)
		if err != nil {
			// Store errors are transient from the loop's point of view:
			// nothing was claimed, nothing may be marked.
			l.logger.Error("claim failed", "error", err)
			l.sleep(ctx, l.config.IdleSleep)
			continue
		}

		if len(jobs) == 0 {
			if l.config.DrainAndExit {
				l.logger.Info("queue drained", "worker_id", l.config.WorkerID)
				return nil
			}
			l.sleep(ctx, l.config.IdleSleep)
			continue
		}

		for i := range jobs {
			l.processJob(ctx, &jobs[i])
			l.sleep(ctx, l.config.JobPause)
		}
	}
}

func (l *Loop) processJob(ctx context.Context, job *core.Job) {
	l.logger.Info("job claimed",
		"job_id", job.ID, "file_number", job.FilingNumber, "attempt", job.Attempts)

	sessionCtx, cancel := context.WithTimeout(ctx, l.config.SessionTimeout)
	record, err := l.fetch.FetchDetail(sessionCtx, job.Site, job.FilingNumber, job.FilingDate)
	cancel()
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", core.ErrSessionExpired, l.config.SessionTimeout)
	}

	if err == nil {
		// A record extracted but not delivered must stay retryable, so a
		// sink error is a job failure, not a job success.
		if _, sinkErr := l.sink.Append(ctx, []core.LienRecord{record}); sinkErr != nil {
			err = fmt.Errorf("%w: %v", core.ErrSinkRejected, sinkErr)
		}
	}

	if err == nil {
		if markErr := l.store.MarkDone(ctx, []string{job.ID}); markErr != nil {
			// Leave the job leased; the lease will expire and the job will
			// be retried rather than silently lost.
			l.logger.Error("mark done failed", "job_id", job.ID, "error", markErr)
			return
		}
		l.logger.Info("job done", "job_id", job.ID, "file_number", job.FilingNumber)
		return
	}

	if job.Attempts >= l.config.MaxAttempts {
		reason := fmt.Sprintf("abandoned after %d attempts: %v", job.Attempts, err)
		if markErr := l.store.MarkAbandoned(ctx, []string{job.ID}, reason); markErr != nil {
			l.logger.Error("mark abandoned failed", "job_id", job.ID, "error", markErr)
			return
		}
		l.logger.Warn("job abandoned",
			"job_id", job.ID, "file_number", job.FilingNumber,
			"attempts", job.Attempts, "error", err)
		return
	}

	if markErr := l.store.MarkFailed(ctx, []string{job.ID}, l.config.Backoff, err.Error()); markErr != nil {
		l.logger.Error("mark failed failed", "job_id", job.ID, "error", markErr)
		return
	}
	l.logger.Warn("job failed, backing off",
		"job_id", job.ID, "file_number", job.FilingNumber,
		"attempt", job.Attempts, "backoff", l.config.Backoff, "error", err)
}

// maybeReleaseStale periodically returns expired leases from crashed
// claimants to the pool.
func (l *Loop) maybeReleaseStale(ctx context.Context) {
	if time.Since(l.lastStaleCheck) < l.config.StaleCheckInterval {
		return
	}
	l.lastStaleCheck = time.Now()

	released, err := l.store.ReleaseStaleLeases(ctx)
	if err != nil {
		l.logger.Error("release stale leases failed", "error", err)
		return
	}
	if released > 0 {
		l.logger.Warn("released stale leases", "count", released)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
