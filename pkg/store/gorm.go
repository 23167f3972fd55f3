package store

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lienharvest/pkg/core"
)

const (
	// DefaultLeaseTTL bounds how long a claimed job stays invisible to
	// other claimers before ReleaseStaleLeases may recover it.
	DefaultLeaseTTL = 10 * time.Minute

	maxReasonLength = 4096
)

// GormStore implements core.Store using GORM.
type GormStore struct {
	db       *gorm.DB
	leaseTTL time.Duration
	now      func() time.Time
}

// Option configures a GormStore.
type Option func(*GormStore)

// WithLeaseTTL overrides the claim lease duration.
func WithLeaseTTL(d time.Duration) Option {
	return func(s *GormStore) { s.leaseTTL = d }
}

// WithClock overrides the store's clock. Tests use this to move wall-clock
// time past backoff windows without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) { s.now = now }
}

// NewGormStore creates a GORM-backed job store.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{
		db:       db,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for stats queries.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Migrate creates the job table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// InsertMany enqueues discovered filings in one transaction. Rows whose
// fingerprint already exists are skipped via ON CONFLICT DO NOTHING, so
// re-running the same discovery window is idempotent.
func (s *GormStore) InsertMany(ctx context.Context, discovered []core.DiscoveredFiling) error {
	if len(discovered) == 0 {
		return nil
	}

	jobs := make([]core.Job, 0, len(discovered))
	for _, d := range discovered {
		jobs = append(jobs, core.Job{
			ID:           uuid.New().String(),
			Fingerprint:  core.Fingerprint(d.Source, d.FileNumber, d.FilingDate),
			Site:         d.Source,
			FilingNumber: d.FileNumber,
			FilingDate:   d.FilingDate,
			Status:       core.StatusQueued,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "fingerprint"}},
				DoNothing: true,
			}).
			Create(&jobs).Error
	})
}

// ClaimBatch leases up to limit eligible jobs inside a single transaction.
func (s *GormStore) ClaimBatch(ctx context.Context, limit int, claimant string) ([]core.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []core.Job
	now := s.now()
	lockUntil := now.Add(s.leaseTTL)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eligible []core.Job
		result := tx.
			Where("status = ? OR (status = ? AND locked_until <= ?)",
				core.StatusQueued, core.StatusFailed, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&eligible)
		if result.Error != nil {
			return result.Error
		}

		for i := range eligible {
			job := &eligible[i]
			job.Status = core.StatusProcessing
			job.LockedBy = claimant
			job.LockedUntil = &lockUntil
			job.Attempts++
			if err := tx.Save(job).Error; err != nil {
				return err
			}
		}
		claimed = eligible
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkDone transitions jobs to done and clears their lease. Idempotent.
func (s *GormStore) MarkDone(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       core.StatusDone,
			"locked_by":    "",
			"locked_until": nil,
		}).Error
}

// MarkFailed transitions jobs to failed and arms the backoff window.
func (s *GormStore) MarkFailed(ctx context.Context, ids []string, backoff time.Duration, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	until := s.now().Add(backoff)
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       core.StatusFailed,
			"locked_by":    "",
			"locked_until": until,
			"last_error":   truncateReason(reason),
		}).Error
}

// MarkAbandoned parks jobs in the terminal abandoned state.
func (s *GormStore) MarkAbandoned(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       core.StatusAbandoned,
			"locked_by":    "",
			"locked_until": nil,
			"last_error":   truncateReason(reason),
		}).Error
}

// PendingCount counts jobs in queued or processing.
func (s *GormStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status IN ?", []core.JobStatus{core.StatusQueued, core.StatusProcessing}).
		Count(&count).Error
	return count, err
}

// StatusCounts returns job counts grouped by status.
func (s *GormStore) StatusCounts(ctx context.Context) (map[core.JobStatus]int64, error) {
	var rows []struct {
		Status core.JobStatus
		N      int64
	}
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[core.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// GetJob retrieves a job by id.
func (s *GormStore) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// JobsByStatus lists up to limit jobs in the given status, oldest first.
func (s *GormStore) JobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]core.Job, error) {
	var jobs []core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ReleaseStaleLeases returns expired processing leases to failed with no
// extra backoff, so a crashed claimant's jobs become claimable again.
func (s *GormStore) ReleaseStaleLeases(ctx context.Context) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusProcessing).
		Where("locked_until <= ?", now).
		Updates(map[string]any{
			"status":       core.StatusFailed,
			"locked_by":    "",
			"locked_until": now,
			"last_error":   "lease expired",
		})
	return result.RowsAffected, result.Error
}

// truncateReason bounds stored error messages.
func truncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= maxReasonLength {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:maxReasonLength-3]) + "..."
}
