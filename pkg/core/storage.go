package core

import (
	"context"
	"time"
)

// Store defines the persistence layer for discovery jobs.
//
// Implementations must make InsertMany and ClaimBatch single atomic units:
// a crash mid-batch may not leave the table half-written, and two
// concurrent claimers may never receive the same job. Store-level failures
// propagate to the caller; they are never swallowed.
type Store interface {
	// Migrate creates the job table and its indexes.
	Migrate(ctx context.Context) error

	// InsertMany enqueues the discovered filings, silently ignoring any
	// whose fingerprint already exists.
	InsertMany(ctx context.Context, discovered []DiscoveredFiling) error

	// ClaimBatch atomically leases up to limit eligible jobs (queued, or
	// failed with an elapsed backoff), oldest first. Each returned job has
	// been transitioned to processing with attempts incremented. An empty
	// slice means the queue is drained, not an error.
	ClaimBatch(ctx context.Context, limit int, claimant string) ([]Job, error)

	// MarkDone transitions jobs to done and clears their lease.
	// Idempotent: already-done ids are no-ops.
	MarkDone(ctx context.Context, ids []string) error

	// MarkFailed transitions jobs to failed with a backoff window during
	// which they are not claimable. The caller decides the backoff.
	MarkFailed(ctx context.Context, ids []string, backoff time.Duration, reason string) error

	// MarkAbandoned parks jobs in the terminal abandoned state. Used by the
	// worker's poison-job escape valve once attempts are exhausted.
	MarkAbandoned(ctx context.Context, ids []string, reason string) error

	// PendingCount counts jobs in queued or processing.
	PendingCount(ctx context.Context) (int64, error)

	// StatusCounts returns the number of jobs per status.
	StatusCounts(ctx context.Context) (map[JobStatus]int64, error)

	// GetJob retrieves a job by id, or nil when absent.
	GetJob(ctx context.Context, id string) (*Job, error)

	// JobsByStatus lists up to limit jobs in the given status.
	JobsByStatus(ctx context.Context, status JobStatus, limit int) ([]Job, error)

	// ReleaseStaleLeases returns expired processing leases (a crashed
	// claimant) to failed with no extra backoff, making them claimable
	// again. Returns the number of released jobs.
	ReleaseStaleLeases(ctx context.Context) (int64, error)
}
