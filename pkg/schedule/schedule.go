// Package schedule runs recurring discovery scans. A Schedule decides the
// next firing time; the Scanner sleeps until then and invokes the
// discovery function with the previous day's date window.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule defines when the next discovery scan should run.
type Schedule interface {
	Next(from time.Time) time.Time
}

// everySchedule fires at fixed intervals.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule firing at fixed intervals.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

// dailySchedule fires at a specific UTC time each day.
type dailySchedule struct {
	hour   int
	minute int
}

// Daily creates a schedule firing at a specific UTC time each day.
func Daily(hour, minute int) Schedule {
	return &dailySchedule{hour: hour, minute: minute}
}

func (s *dailySchedule) Next(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// cronSchedule wraps a cron expression.
type cronSchedule struct {
	schedule cron.Schedule
}

// Cron creates a schedule from a standard five-field cron expression.
// Panics on an invalid expression; schedules come from static config.
func Cron(expr string) Schedule {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		panic("invalid cron expression: " + err.Error())
	}
	return &cronSchedule{schedule: schedule}
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// DiscoverFunc runs one discovery scan over [dateStart, dateEnd]
// (MM/DD/YYYY, inclusive).
type DiscoverFunc func(ctx context.Context, dateStart, dateEnd string) error

// Scanner fires a DiscoverFunc on a schedule, covering the day before
// each firing so a daily schedule sweeps yesterday's filings.
type Scanner struct {
	schedule Schedule
	discover DiscoverFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewScanner builds a scanner. A nil logger falls back to slog.Default.
func NewScanner(s Schedule, discover DiscoverFunc, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		schedule: s,
		discover: discover,
		logger:   logger,
		now:      time.Now,
	}
}

// Window returns the date window a firing at t covers: the full previous
// day, in the source's MM/DD/YYYY format.
func Window(t time.Time) (dateStart, dateEnd string) {
	day := t.UTC().AddDate(0, 0, -1)
	formatted := day.Format("01/02/2006")
	return formatted, formatted
}

// Start blocks, firing discovery scans until ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) error {
	for {
		next := s.schedule.Next(s.now())
		s.logger.Info("next discovery scan", "at", next)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		dateStart, dateEnd := Window(s.now())
		if err := s.discover(ctx, dateStart, dateEnd); err != nil {
			s.logger.Error("scheduled discovery failed",
				"date_start", dateStart, "date_end", dateEnd, "error", err)
		}
	}
}
