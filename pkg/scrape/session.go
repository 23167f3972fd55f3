// Package scrape drives the multi-stage extraction pipeline against a
// filing source: search, paginate, open a row's detail panel, open its
// history, download the attached document, close. Every UI transition runs
// under one bounded-retry wrapper, and row-level failures degrade to
// partial records instead of aborting the session.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lienharvest/pkg/browser"
	"lienharvest/pkg/core"
)

// sessionState tags the listing-scan machine.
type sessionState int

const (
	stateInit sessionState = iota
	stateSearching
	statePaginating
	stateDone
	stateTooManyResults
	stateFailed
)

// rowState tags the per-row sub-machine.
type rowState int

const (
	rowOpen rowState = iota
	rowDetail
	rowHistory
	rowDownload
	rowClose
	rowFinished
)

const (
	// DefaultResultCeiling is the count above which a search must be split
	// into narrower date ranges.
	DefaultResultCeiling = 1000

	// DefaultMaxRecords caps one session's collection.
	DefaultMaxRecords = 1000

	defaultWaitTimeout   = 8 * time.Second
	defaultSearchTimeout = 30 * time.Second
)

// Config parameterizes one discovery scan.
type Config struct {
	DateStart     string // MM/DD/YYYY
	DateEnd       string // MM/DD/YYYY
	MaxRecords    int
	ResultCeiling int
	Resume        core.Cursor
	DownloadDir   string
}

// Result is what a session hands back: the ordered records (possibly
// containing partial, error-tagged entries), the resumption cursor, and
// the result count the source reported.
type Result struct {
	Records []core.LienRecord
	Cursor  core.Cursor
	Total   int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLimiter sets the rate limiter gating automation calls.
func WithLimiter(l browser.Limiter) SessionOption {
	return func(s *Session) { s.limiter = l }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithRetry overrides the per-step retry budget.
func WithRetry(cfg browser.RetryConfig) SessionOption {
	return func(s *Session) { s.retry = cfg }
}

// WithDelay overrides the human-like pause between interactions.
func WithDelay(d browser.DelayFunc) SessionOption {
	return func(s *Session) { s.delay = d }
}

// Session is one stateful listing scan against a source.
type Session struct {
	page    browser.Page
	site    *Site
	cfg     Config
	limiter browser.Limiter
	logger  *slog.Logger
	retry   browser.RetryConfig
	delay   browser.DelayFunc

	state       sessionState
	records     []core.LienRecord
	cursor      core.Cursor
	total       int
	currentPage int
	startPage   int
	err         error
}

// NewSession builds a session over an open page.
func NewSession(page browser.Page, site *Site, cfg Config, opts ...SessionOption) *Session {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.ResultCeiling <= 0 {
		cfg.ResultCeiling = DefaultResultCeiling
	}
	s := &Session{
		page:    page,
		site:    site,
		cfg:     cfg,
		limiter: browser.NopLimiter{},
		logger:  slog.Default(),
		retry:   browser.DefaultRetryConfig(),
		delay:   browser.HumanDelay(800*time.Millisecond, 1800*time.Millisecond),
		state:   stateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the machine to a terminal state. On the TooManyResults path
// the returned error is a *core.TooManyResultsError and no records are
// emitted. Any other error still carries the records and cursor collected
// so far, so the caller can persist the resumption point.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	for {
		var next sessionState
		var err error

		switch s.state {
		case stateInit:
			next, err = s.stepInit(ctx)
		case stateSearching:
			next, err = s.stepSearch(ctx)
		case statePaginating:
			next, err = s.stepPaginate(ctx)
		case stateDone:
			return s.result(), nil
		case stateTooManyResults:
			return s.result(), &core.TooManyResultsError{Count: s.total, Ceiling: s.cfg.ResultCeiling}
		case stateFailed:
			return s.result(), s.err
		}

		if err != nil {
			s.err = err
			s.state = stateFailed
			continue
		}
		s.state = next
	}
}

func (s *Session) result() *Result {
	return &Result{Records: s.records, Cursor: s.cursor, Total: s.total}
}

// stepInit navigates to the source and fills the search form.
func (s *Session) stepInit(ctx context.Context) (sessionState, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if err := s.page.Navigate(ctx, s.site.SearchURL); err != nil {
		return 0, err
	}

	steps := []func() error{
		func() error {
			if err := s.page.WaitVisible(ctx, s.site.SearchInput, defaultSearchTimeout); err != nil {
				return err
			}
			return s.page.Fill(ctx, s.site.SearchInput, s.site.SearchTerm)
		},
		func() error { return s.page.Click(ctx, s.site.AdvancedButton) },
		func() error {
			if err := s.page.WaitVisible(ctx, s.site.FileTypeSelect, s.waitTimeout()); err != nil {
				return err
			}
			return s.page.SelectOption(ctx, s.site.FileTypeSelect, s.site.DocumentTypeFilter)
		},
		func() error { return s.page.Fill(ctx, s.site.DateStartInput, s.cfg.DateStart) },
		func() error { return s.page.Fill(ctx, s.site.DateEndInput, s.cfg.DateEnd) },
	}
	for _, step := range steps {
		if err := s.attempt(ctx, step); err != nil {
			return 0, err
		}
		s.delay(ctx)
	}
	return stateSearching, nil
}

// stepSearch submits the search and reads the reported result count.
func (s *Session) stepSearch(ctx context.Context) (sessionState, error) {
	if err := s.attempt(ctx, func() error { return s.page.Click(ctx, s.site.SearchButton) }); err != nil {
		return 0, err
	}
	s.delay(ctx)

	var countText string
	err := s.attempt(ctx, func() error {
		if err := s.page.WaitVisible(ctx, s.site.ResultCount, defaultSearchTimeout); err != nil {
			return err
		}
		var readErr error
		countText, readErr = s.page.Text(ctx, s.site.ResultCount)
		return readErr
	})
	if err != nil {
		return 0, err
	}

	s.total = parseResultCount(countText)
	s.logger.Info("search submitted",
		"site", s.site.Key,
		"date_start", s.cfg.DateStart,
		"date_end", s.cfg.DateEnd,
		"results", s.total,
	)

	if s.total > s.cfg.ResultCeiling {
		return stateTooManyResults, nil
	}
	if s.total == 0 {
		return stateDone, nil
	}

	s.currentPage = 1
	if s.cfg.Resume.Page > 1 {
		err := s.attempt(ctx, func() error {
			return s.page.Click(ctx, s.site.PageButton(s.cfg.Resume.Page))
		})
		if err != nil {
			return 0, err
		}
		s.delay(ctx)
		s.currentPage = s.cfg.Resume.Page
	}
	s.startPage = s.currentPage
	s.cursor = core.Cursor{Page: s.currentPage, Row: s.startRow()}
	return statePaginating, nil
}

// stepPaginate walks the rows of the current page, then either advances to
// the next page or finishes.
func (s *Session) stepPaginate(ctx context.Context) (sessionState, error) {
	rowCount, err := s.page.Count(ctx, s.site.RowLocator)
	if err != nil {
		return 0, err
	}

	start := 0
	if s.currentPage == s.startPage {
		start = s.startRow()
	}

	for i := start; i < rowCount; i++ {
		if len(s.records) >= s.cfg.MaxRecords {
			return stateDone, nil
		}
		record, err := s.processRow(ctx, i)
		if err != nil {
			// Session-fatal: the cursor still points at this row, so a
			// resume re-reads it instead of skipping past it.
			return 0, fmt.Errorf("page %d row %d: %w", s.currentPage, i, err)
		}
		if record != nil {
			s.records = append(s.records, *record)
			s.logger.Info("record collected",
				"file_number", record.FileNumber, "total", len(s.records))
		}
		s.cursor = core.Cursor{Page: s.currentPage, Row: i + 1}
	}

	if len(s.records) >= s.cfg.MaxRecords {
		return stateDone, nil
	}
	if !s.page.Visible(ctx, s.site.NextPageButton) {
		return stateDone, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if err := s.attempt(ctx, func() error { return s.page.Click(ctx, s.site.NextPageButton) }); err != nil {
		return 0, err
	}
	s.delay(ctx)
	s.currentPage++
	s.cursor = core.Cursor{Page: s.currentPage, Row: 0}
	return statePaginating, nil
}

// processRow runs the per-row sub-machine. A nil record with nil error
// means the row carried no file number (a layout artifact) and was
// skipped. A non-nil error is session-fatal: the summary cells could not
// be read at all, which means the agent or the page is gone, not that one
// cell was empty.
func (s *Session) processRow(ctx context.Context, i int) (*core.LienRecord, error) {
	record := core.LienRecord{
		State:  s.site.State,
		Source: s.site.Key,
	}
	cells := []struct {
		col  int
		dest *string
	}{
		{s.site.Columns.UCCType, &record.UCCType},
		{s.site.Columns.FileNumber, &record.FileNumber},
		{s.site.Columns.Status, &record.Status},
		{s.site.Columns.FilingDate, &record.FilingDate},
		{s.site.Columns.LapseDate, &record.LapseDate},
	}
	for _, cell := range cells {
		text, err := s.cellText(ctx, i, cell.col)
		if err != nil {
			return nil, err
		}
		*cell.dest = text
	}
	if record.FileNumber == "" {
		return nil, nil
	}

	labels := s.site.Labels
	state := rowOpen
	for state != rowFinished {
		switch state {
		case rowOpen:
			err := s.attempt(ctx, func() error {
				if err := s.page.Click(ctx, s.site.RowToggle(i)); err != nil {
					return err
				}
				return s.page.WaitVisible(ctx, s.site.DetailPanel(record.FileNumber), s.waitTimeout())
			})
			if err != nil {
				record.Error = core.TagPanelFailed
				state = rowFinished
				continue
			}
			state = rowDetail

		case rowDetail:
			record.DebtorName = extractField(ctx, s.page, s.site, labels.DebtorName)
			record.DebtorAddress = extractField(ctx, s.page, s.site, labels.DebtorAddress)
			record.SecuredPartyName = extractField(ctx, s.page, s.site, labels.SecuredPartyName)
			record.SecuredPartyAddress = extractField(ctx, s.page, s.site, labels.SecuredPartyAddress)
			state = rowHistory

		case rowHistory:
			err := s.attempt(ctx, func() error {
				if err := s.page.Click(ctx, s.site.HistoryButton); err != nil {
					return err
				}
				return s.page.WaitVisible(ctx, s.site.HistoryDialog, s.waitTimeout())
			})
			if err != nil {
				record.Error = core.TagHistoryFailed
				state = rowClose
				continue
			}
			state = rowDownload

		case rowDownload:
			record.DocumentType = extractField(ctx, s.page, s.site, labels.DocumentType)
			if s.page.Visible(ctx, s.site.DownloadLink) {
				name := PDFName(record.FileNumber, record.FilingDate)
				dest := filepath.Join(s.cfg.DownloadDir, name)
				if err := s.page.Download(ctx, s.site.DownloadLink, dest); err != nil {
					s.logger.Warn("pdf download failed",
						"file_number", record.FileNumber, "error", err)
				} else {
					record.PDFFilename = name
				}
			}
			// Dismiss the history dialog before closing the panel.
			_ = s.page.Press(ctx, "Escape")
			state = rowClose

		case rowClose:
			s.closePanel(ctx)
			if record.Error == "" {
				record.Processed = true
			}
			state = rowFinished
		}
	}
	return &record, nil
}

// closePanel closes the detail view, falling back to a generic cancel
// gesture so the session never gets stuck mid-row.
func (s *Session) closePanel(ctx context.Context) {
	if err := s.page.Click(ctx, s.site.CloseControl); err != nil {
		_ = s.page.Press(ctx, "Escape")
	}
}

func (s *Session) attempt(ctx context.Context, op func() error) error {
	return browser.Retry(ctx, browser.RetryConfig{Attempts: s.retry.Attempts, Delay: s.delay}, op)
}

// cellText reads one summary cell. A cell that never became visible is an
// empty string (layout artifact); any other read failure is surfaced so
// the session can stop instead of walking a page it can no longer see.
func (s *Session) cellText(ctx context.Context, row, col int) (string, error) {
	text, err := s.page.Text(ctx, s.site.RowCell(row, col))
	if err != nil {
		if errors.Is(err, browser.ErrNotVisible) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *Session) waitTimeout() time.Duration {
	return defaultWaitTimeout
}

func (s *Session) startRow() int {
	if s.cfg.Resume.Page <= 1 && s.cfg.Resume.Row == 0 {
		return 0
	}
	return s.cfg.Resume.Row
}

var resultCountPattern = regexp.MustCompile(`\d+`)

// parseResultCount pulls the integer out of the reported "Results: N"
// text. Unparseable text counts as zero.
func parseResultCount(text string) int {
	match := resultCountPattern.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

var dateSeparators = strings.NewReplacer("/", "", "-", "")

// PDFName derives the deterministic download name for a filing document.
func PDFName(fileNumber, filingDate string) string {
	return fileNumber + "_" + dateSeparators.Replace(filingDate) + ".pdf"
}
