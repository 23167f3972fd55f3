package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"lienharvest/pkg/browser"
	"lienharvest/pkg/core"
)

// DetailFetcher extracts one filing's full record by file number. This is
// the worker path: one automation session per claimed job, searching the
// source directly instead of walking the listing.
type DetailFetcher struct {
	conn        browser.Connector
	limiter     browser.Limiter
	logger      *slog.Logger
	retry       browser.RetryConfig
	delay       browser.DelayFunc
	downloadDir string
}

// FetcherOption configures a DetailFetcher.
type FetcherOption func(*DetailFetcher)

// WithFetchLimiter sets the rate limiter gating automation calls.
func WithFetchLimiter(l browser.Limiter) FetcherOption {
	return func(f *DetailFetcher) { f.limiter = l }
}

// WithFetchLogger sets the fetcher logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *DetailFetcher) { f.logger = logger }
}

// WithFetchRetry overrides the per-step retry budget.
func WithFetchRetry(cfg browser.RetryConfig) FetcherOption {
	return func(f *DetailFetcher) { f.retry = cfg }
}

// WithFetchDelay overrides the human-like pause between interactions.
func WithFetchDelay(d browser.DelayFunc) FetcherOption {
	return func(f *DetailFetcher) { f.delay = d }
}

// NewDetailFetcher builds a fetcher that opens a session per call.
func NewDetailFetcher(conn browser.Connector, downloadDir string, opts ...FetcherOption) *DetailFetcher {
	f := &DetailFetcher{
		conn:        conn,
		limiter:     browser.NopLimiter{},
		logger:      slog.Default(),
		retry:       browser.DefaultRetryConfig(),
		delay:       browser.HumanDelay(800*time.Millisecond, 1800*time.Millisecond),
		downloadDir: downloadDir,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchDetail runs the per-job extraction session: search by file number,
// open the first result, read the detail fields, open history, download
// the document if one is attached, close. A failure before the detail
// panel opens is session-fatal and returned as an error; later sub-step
// failures degrade to a partial record.
func (f *DetailFetcher) FetchDetail(ctx context.Context, siteKey, fileNumber, filingDate string) (core.LienRecord, error) {
	site, err := Lookup(siteKey)
	if err != nil {
		return core.LienRecord{}, err
	}

	page, err := f.conn.NewPage(ctx)
	if err != nil {
		return core.LienRecord{}, fmt.Errorf("open session: %w", err)
	}
	defer page.Close(ctx)

	record := core.LienRecord{
		State:        site.State,
		Source:       site.Key,
		UCCType:      site.DefaultUCCType,
		DocumentType: site.DefaultDocumentType,
		Status:       site.DefaultStatus,
		FileNumber:   fileNumber,
		FilingDate:   filingDate,
		LapseDate:    site.DefaultLapseDate,
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return record, err
	}
	f.logger.Info("detail session start", "site", siteKey, "file_number", fileNumber)

	if err := page.Navigate(ctx, site.DetailSearchURL); err != nil {
		return record, fmt.Errorf("navigate: %w", err)
	}

	err = f.attempt(ctx, func() error {
		if err := page.WaitVisible(ctx, site.FileNumberInput, defaultSearchTimeout); err != nil {
			return err
		}
		if err := page.Fill(ctx, site.FileNumberInput, fileNumber); err != nil {
			return err
		}
		return page.Click(ctx, site.SearchButton)
	})
	if err != nil {
		return record, fmt.Errorf("search by file number: %w", err)
	}
	f.delay(ctx)

	err = f.attempt(ctx, func() error {
		if err := page.WaitVisible(ctx, site.RowLocator, defaultSearchTimeout); err != nil {
			return err
		}
		if err := page.Click(ctx, site.RowToggle(0)); err != nil {
			return err
		}
		return page.WaitVisible(ctx, site.DetailPanel(fileNumber), defaultWaitTimeout)
	})
	if err != nil {
		return record, fmt.Errorf("open detail: %w", err)
	}

	labels := site.Labels
	record.DebtorName = extractField(ctx, page, site, labels.DebtorName)
	record.DebtorAddress = extractField(ctx, page, site, labels.DebtorAddress)
	record.SecuredPartyName = extractField(ctx, page, site, labels.SecuredPartyName)
	record.SecuredPartyAddress = extractField(ctx, page, site, labels.SecuredPartyAddress)

	err = f.attempt(ctx, func() error {
		if err := page.Click(ctx, site.HistoryButton); err != nil {
			return err
		}
		return page.WaitVisible(ctx, site.HistoryDialog, defaultWaitTimeout)
	})
	if err != nil {
		// Keep the fields already extracted.
		record.Error = core.TagHistoryFailed
		f.closeDetail(ctx, page, site)
		return record, nil
	}

	if docType := extractField(ctx, page, site, labels.DocumentType); docType != "" {
		record.DocumentType = docType
	}

	if page.Visible(ctx, site.DownloadLink) {
		name := PDFName(fileNumber, filingDate)
		dest := filepath.Join(f.downloadDir, name)
		if err := page.Download(ctx, site.DownloadLink, dest); err != nil {
			f.logger.Warn("pdf download failed", "file_number", fileNumber, "error", err)
		} else {
			record.PDFFilename = name
			f.logger.Info("pdf downloaded", "file_number", fileNumber, "path", dest)
		}
	} else {
		record.Error = core.TagNoDownloadAvailable
	}

	_ = page.Press(ctx, "Escape")
	f.closeDetail(ctx, page, site)

	record.Processed = record.Error == ""
	return record, nil
}

func (f *DetailFetcher) closeDetail(ctx context.Context, page browser.Page, site *Site) {
	if err := page.Click(ctx, site.CloseControl); err != nil {
		_ = page.Press(ctx, "Escape")
	}
}

func (f *DetailFetcher) attempt(ctx context.Context, op func() error) error {
	return browser.Retry(ctx, browser.RetryConfig{Attempts: f.retry.Attempts, Delay: f.delay}, op)
}
