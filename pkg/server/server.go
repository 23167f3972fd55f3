// Package server is the HTTP front door that triggers discovery scans.
// It owns the one policy the extraction core refuses to: when a search
// window reports too many results, the server splits the date range in
// half and re-invokes both halves.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lienharvest/pkg/core"
	"lienharvest/pkg/cursor"
	"lienharvest/pkg/scrape"
	"lienharvest/pkg/sink"
)

// DefaultMaxSplitDepth bounds recursive window splitting.
const DefaultMaxSplitDepth = 4

const dateLayout = "01/02/2006"

// ScanFunc runs one discovery scan for a site. Implementations open an
// automation session, run the listing session, and return its result.
// On failure the partial result (records and cursor so far) must still be
// returned alongside the error.
type ScanFunc func(ctx context.Context, site string, cfg scrape.Config) (*scrape.Result, error)

// ScanRequest is the trigger payload.
type ScanRequest struct {
	Site         string       `json:"site"`
	DateStart    string       `json:"date_start"`
	DateEnd      string       `json:"date_end"`
	MaxRecords   int          `json:"max_records,omitempty"`
	Enqueue      bool         `json:"enqueue,omitempty"`
	ResumeCursor *core.Cursor `json:"resume_cursor,omitempty"`
}

// ScanResponse is the trigger result body.
type ScanResponse struct {
	Success         bool    `json:"success"`
	RecordsScraped  int     `json:"records_scraped"`
	RowsUploaded    int     `json:"rows_uploaded,omitempty"`
	JobsEnqueued    int     `json:"jobs_enqueued,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
}

// Server wires the trigger endpoint, the queue stats endpoint, and a
// health check.
type Server struct {
	scan          ScanFunc
	store         core.Store
	sink          sink.Sink
	cursors       cursor.Store
	logger        *slog.Logger
	maxSplitDepth int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCursorStore enables cursor persistence for interrupted scans.
func WithCursorStore(c cursor.Store) ServerOption {
	return func(s *Server) { s.cursors = c }
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMaxSplitDepth bounds recursive date-window splitting.
func WithMaxSplitDepth(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxSplitDepth = n
		}
	}
}

// New creates a Server.
func New(scan ScanFunc, store core.Store, s sink.Sink, opts ...ServerOption) *Server {
	srv := &Server{
		scan:          scan,
		store:         store,
		sink:          s,
		logger:        slog.Default(),
		maxSplitDepth: DefaultMaxSplitDepth,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scrape", s.handleScrape)
	mux.HandleFunc("GET /queue/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := scrape.Lookup(req.Site); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported site %q", req.Site))
		return
	}
	if err := validateWindow(req.DateStart, req.DateEnd); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	resume := s.loadCursor(ctx, req)

	s.logger.Info("scrape start",
		"site", req.Site,
		"date_start", req.DateStart,
		"date_end", req.DateEnd,
		"enqueue", req.Enqueue,
		"resume_page", resume.Page,
		"resume_row", resume.Row,
	)

	records, err := s.runScan(ctx, req.Site, scrape.Config{
		DateStart:  req.DateStart,
		DateEnd:    req.DateEnd,
		MaxRecords: req.MaxRecords,
		Resume:     resume,
	}, 0)
	if err != nil {
		s.logger.Error("scrape failed", "site", req.Site, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.clearCursor(ctx, req)

	resp := ScanResponse{
		Success:        true,
		RecordsScraped: len(records),
	}

	if req.Enqueue {
		discovered := make([]core.DiscoveredFiling, 0, len(records))
		for _, rec := range records {
			discovered = append(discovered, rec.Identity())
		}
		if err := s.store.InsertMany(ctx, discovered); err != nil {
			s.logger.Error("enqueue failed", "site", req.Site, "error", err)
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.JobsEnqueued = len(discovered)
	} else {
		uploaded, err := s.sink.Append(ctx, records)
		if err != nil {
			s.logger.Error("sink append failed", "site", req.Site, "error", err)
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.RowsUploaded = uploaded
	}

	resp.DurationSeconds = time.Since(start).Seconds()
	s.logger.Info("scrape complete",
		"site", req.Site,
		"records", resp.RecordsScraped,
		"duration_seconds", resp.DurationSeconds,
	)
	s.writeJSON(w, http.StatusOK, resp)
}

// runScan executes one window, splitting it in half on the
// too-many-results signal, up to maxSplitDepth levels deep.
func (s *Server) runScan(ctx context.Context, site string, cfg scrape.Config, depth int) ([]core.LienRecord, error) {
	result, err := s.scan(ctx, site, cfg)

	if count, ok := core.IsTooManyResults(err); ok {
		if depth >= s.maxSplitDepth {
			return nil, fmt.Errorf("window %s..%s still reports %d results after %d splits",
				cfg.DateStart, cfg.DateEnd, count, depth)
		}
		firstEnd, secondStart, splitErr := splitWindow(cfg.DateStart, cfg.DateEnd)
		if splitErr != nil {
			return nil, fmt.Errorf("window %s..%s reports %d results and cannot be split further",
				cfg.DateStart, cfg.DateEnd, count)
		}
		s.logger.Info("splitting window",
			"site", site, "count", count,
			"first", cfg.DateStart+".."+firstEnd,
			"second", secondStart+".."+cfg.DateEnd,
		)

		first := cfg
		first.DateEnd = firstEnd
		first.Resume = core.Cursor{}
		records, err := s.runScan(ctx, site, first, depth+1)
		if err != nil {
			return nil, err
		}

		second := cfg
		second.DateStart = secondStart
		second.Resume = core.Cursor{}
		more, err := s.runScan(ctx, site, second, depth+1)
		if err != nil {
			return nil, err
		}
		return append(records, more...), nil
	}

	if err != nil {
		if result != nil && s.cursors != nil && !result.Cursor.IsZero() {
			// Persist the resumption point so a re-invocation skips what
			// was already collected.
			if saveErr := s.cursors.Save(ctx, site, cfg.DateStart, cfg.DateEnd, result.Cursor); saveErr != nil {
				s.logger.Error("cursor save failed", "site", site, "error", saveErr)
			} else {
				s.logger.Info("cursor saved",
					"site", site, "page", result.Cursor.Page, "row", result.Cursor.Row)
			}
		}
		return nil, err
	}
	return result.Records, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending, err := s.store.PendingCount(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"counts":  counts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loadCursor(ctx context.Context, req ScanRequest) core.Cursor {
	if req.ResumeCursor != nil {
		return *req.ResumeCursor
	}
	if s.cursors == nil {
		return core.Cursor{}
	}
	c, ok, err := s.cursors.Load(ctx, req.Site, req.DateStart, req.DateEnd)
	if err != nil {
		s.logger.Error("cursor load failed", "site", req.Site, "error", err)
		return core.Cursor{}
	}
	if !ok {
		return core.Cursor{}
	}
	return c
}

func (s *Server) clearCursor(ctx context.Context, req ScanRequest) {
	if s.cursors == nil {
		return
	}
	if err := s.cursors.Clear(ctx, req.Site, req.DateStart, req.DateEnd); err != nil {
		s.logger.Error("cursor clear failed", "site", req.Site, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ScanResponse{Success: false, Error: msg})
}

func validateWindow(dateStart, dateEnd string) error {
	if dateStart == "" || dateEnd == "" {
		return errors.New("date_start and date_end required")
	}
	start, err := time.Parse(dateLayout, dateStart)
	if err != nil {
		return fmt.Errorf("date_start must be MM/DD/YYYY")
	}
	end, err := time.Parse(dateLayout, dateEnd)
	if err != nil {
		return fmt.Errorf("date_end must be MM/DD/YYYY")
	}
	if end.Before(start) {
		return errors.New("date_end before date_start")
	}
	return nil
}

// splitWindow halves an inclusive date window, returning the end of the
// first half and the start of the second. A single-day window cannot be
// split.
func splitWindow(dateStart, dateEnd string) (firstEnd, secondStart string, err error) {
	start, err := time.Parse(dateLayout, dateStart)
	if err != nil {
		return "", "", err
	}
	end, err := time.Parse(dateLayout, dateEnd)
	if err != nil {
		return "", "", err
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		return "", "", errors.New("window is a single day")
	}
	mid := start.AddDate(0, 0, days/2)
	return mid.Format(dateLayout), mid.AddDate(0, 0, 1).Format(dateLayout), nil
}
