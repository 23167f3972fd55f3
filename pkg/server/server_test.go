package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lienharvest/pkg/core"
	"lienharvest/pkg/cursor"
	"lienharvest/pkg/scrape"
	"lienharvest/pkg/server"
)

// stubStore records enqueued filings and serves canned stats.
type stubStore struct {
	mu       sync.Mutex
	inserted []core.DiscoveredFiling
	counts   map[core.JobStatus]int64
	pending  int64
}

func (s *stubStore) Migrate(context.Context) error { return nil }

func (s *stubStore) InsertMany(_ context.Context, discovered []core.DiscoveredFiling) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, discovered...)
	return nil
}

func (s *stubStore) ClaimBatch(context.Context, int, string) ([]core.Job, error) {
	return nil, nil
}
func (s *stubStore) MarkDone(context.Context, []string) error { return nil }
func (s *stubStore) MarkFailed(context.Context, []string, time.Duration, string) error {
	return nil
}
func (s *stubStore) MarkAbandoned(context.Context, []string, string) error { return nil }
func (s *stubStore) PendingCount(context.Context) (int64, error)           { return s.pending, nil }
func (s *stubStore) StatusCounts(context.Context) (map[core.JobStatus]int64, error) {
	return s.counts, nil
}
func (s *stubStore) GetJob(context.Context, string) (*core.Job, error) { return nil, nil }
func (s *stubStore) JobsByStatus(context.Context, core.JobStatus, int) ([]core.Job, error) {
	return nil, nil
}
func (s *stubStore) ReleaseStaleLeases(context.Context) (int64, error) { return 0, nil }

type stubSink struct {
	appended []core.LienRecord
	err      error
}

func (s *stubSink) Append(_ context.Context, records []core.LienRecord) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.appended = append(s.appended, records...)
	return len(records), nil
}

func record(fileNumber string) core.LienRecord {
	return core.LienRecord{
		Source:     "ca_sos",
		FileNumber: fileNumber,
		FilingDate: "01/15/2024",
		Processed:  true,
	}
}

func postScrape(t *testing.T, handler http.Handler, req server.ScanRequest) (*httptest.ResponseRecorder, server.ScanResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewReader(body))
	handler.ServeHTTP(w, r)

	var resp server.ScanResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w, resp
}

func TestHandleScrape_SinkPath(t *testing.T) {
	scan := func(_ context.Context, _ string, _ scrape.Config) (*scrape.Result, error) {
		return &scrape.Result{
			Records: []core.LienRecord{record("U1"), record("U2")},
			Total:   2,
		}, nil
	}
	store := &stubStore{}
	sink := &stubSink{}
	srv := server.New(scan, store, sink)

	w, resp := postScrape(t, srv.Handler(), server.ScanRequest{
		Site: "ca_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.RecordsScraped)
	assert.Equal(t, 2, resp.RowsUploaded)
	assert.Zero(t, resp.JobsEnqueued)
	assert.Len(t, sink.appended, 2)
	assert.Empty(t, store.inserted)
}

func TestHandleScrape_EnqueuePath(t *testing.T) {
	scan := func(_ context.Context, _ string, _ scrape.Config) (*scrape.Result, error) {
		return &scrape.Result{Records: []core.LienRecord{record("U1"), record("U2")}}, nil
	}
	store := &stubStore{}
	sink := &stubSink{}
	srv := server.New(scan, store, sink)

	w, resp := postScrape(t, srv.Handler(), server.ScanRequest{
		Site: "ca_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024", Enqueue: true,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, resp.JobsEnqueued)
	assert.Empty(t, sink.appended)
	require.Len(t, store.inserted, 2)
	assert.Equal(t, core.DiscoveredFiling{
		Source: "ca_sos", FileNumber: "U1", FilingDate: "01/15/2024",
	}, store.inserted[0])
}

func TestHandleScrape_BadRequests(t *testing.T) {
	scan := func(_ context.Context, _ string, _ scrape.Config) (*scrape.Result, error) {
		t.Fatal("scan must not run on a rejected request")
		return nil, nil
	}
	srv := server.New(scan, &stubStore{}, &stubSink{})
	handler := srv.Handler()

	t.Run("invalid json", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewReader([]byte("{not json")))
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown site", func(t *testing.T) {
		w, resp := postScrape(t, handler, server.ScanRequest{
			Site: "nv_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, resp.Error, "nv_sos")
	})

	t.Run("missing dates", func(t *testing.T) {
		w, _ := postScrape(t, handler, server.ScanRequest{Site: "ca_sos"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed date", func(t *testing.T) {
		w, _ := postScrape(t, handler, server.ScanRequest{
			Site: "ca_sos", DateStart: "2024-01-01", DateEnd: "01/31/2024",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inverted window", func(t *testing.T) {
		w, _ := postScrape(t, handler, server.ScanRequest{
			Site: "ca_sos", DateStart: "01/31/2024", DateEnd: "01/01/2024",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleScrape_SplitsOnTooManyResults(t *testing.T) {
	// Windows wider than a week report the scale signal; narrower windows
	// return one record named after their start date.
	var mu sync.Mutex
	var windows []string
	scan := func(_ context.Context, _ string, cfg scrape.Config) (*scrape.Result, error) {
		mu.Lock()
		windows = append(windows, cfg.DateStart+".."+cfg.DateEnd)
		mu.Unlock()

		start, err := time.Parse("01/02/2006", cfg.DateStart)
		require.NoError(t, err)
		end, err := time.Parse("01/02/2006", cfg.DateEnd)
		require.NoError(t, err)
		if end.Sub(start) > 7*24*time.Hour {
			return &scrape.Result{}, &core.TooManyResultsError{Count: 1500, Ceiling: 1000}
		}
		return &scrape.Result{Records: []core.LienRecord{record(cfg.DateStart)}}, nil
	}
	srv := server.New(scan, &stubStore{}, &stubSink{})

	w, resp := postScrape(t, srv.Handler(), server.ScanRequest{
		Site: "ca_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.GreaterOrEqual(t, resp.RecordsScraped, 4, "each narrow leaf window contributes a record")
	assert.Contains(t, windows, "01/01/2024..01/31/2024")
}

func TestHandleScrape_SplitDepthBounded(t *testing.T) {
	scan := func(_ context.Context, _ string, _ scrape.Config) (*scrape.Result, error) {
		return &scrape.Result{}, &core.TooManyResultsError{Count: 5000, Ceiling: 1000}
	}
	srv := server.New(scan, &stubStore{}, &stubSink{}, server.WithMaxSplitDepth(2))

	w, resp := postScrape(t, srv.Handler(), server.ScanRequest{
		Site: "ca_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "5000")
}

func TestHandleScrape_SingleDayCannotSplit(t *testing.T) {
	scan := func(_ context.Context, _ string, _ scrape.Config) (*scrape.Result, error) {
		return &scrape.Result{}, &core.TooManyResultsError{Count: 1200, Ceiling: 1000}
	}
	srv := server.New(scan, &stubStore{}, &stubSink{})

	w, resp := postScrape(t, srv.Handler(), server.ScanRequest{
		Site: "ca_sos", DateStart: "01/15/2024", DateEnd: "01/15/2024",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, resp.Error, "cannot be split")
}

func TestHandleScrape_CursorSavedOnFailureAndResumed(t *testing.T) {
	cursors := cursor.NewMemory()
	calls := 0
	var resumedWith core.Cursor
	scan := func(_ context.Context, _ string, cfg scrape.Config) (*scrape.Result, error) {
		calls++
		if calls == 1 {
			// Die mid-listing with a partial cursor.
			return &scrape.Result{Cursor: core.Cursor{Page: 3, Row: 4}}, errors.New("session crashed")
		}
		resumedWith = cfg.Resume
		return &scrape.Result{Records: []core.LienRecord{record("U1")}}, nil
	}
	srv := server.New(scan, &stubStore{}, &stubSink{}, server.WithCursorStore(cursors))
	req := server.ScanRequest{Site: "ca_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024"}

	w, _ := postScrape(t, srv.Handler(), req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	saved, ok, err := cursors.Load(context.Background(), "ca_sos", "01/01/2024", "01/31/2024")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.Cursor{Page: 3, Row: 4}, saved)

	// The retry picks the cursor up and clears it on success.
	w, resp := postScrape(t, srv.Handler(), req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, core.Cursor{Page: 3, Row: 4}, resumedWith)

	_, ok, err = cursors.Load(context.Background(), "ca_sos", "01/01/2024", "01/31/2024")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandleScrape_ExplicitResumeCursorWins(t *testing.T) {
	cursors := cursor.NewMemory()
	require.NoError(t, cursors.Save(context.Background(),
		"ca_sos", "01/01/2024", "01/31/2024", core.Cursor{Page: 9, Row: 9}))

	var resumedWith core.Cursor
	scan := func(_ context.Context, _ string, cfg scrape.Config) (*scrape.Result, error) {
		resumedWith = cfg.Resume
		return &scrape.Result{}, nil
	}
	srv := server.New(scan, &stubStore{}, &stubSink{}, server.WithCursorStore(cursors))

	_, _ = postScrape(t, srv.Handler(), server.ScanRequest{
		Site: "ca_sos", DateStart: "01/01/2024", DateEnd: "01/31/2024",
		ResumeCursor: &core.Cursor{Page: 2, Row: 1},
	})
	assert.Equal(t, core.Cursor{Page: 2, Row: 1}, resumedWith)
}

func TestHandleStats(t *testing.T) {
	store := &stubStore{
		pending: 7,
		counts: map[core.JobStatus]int64{
			core.StatusQueued: 5,
			core.StatusDone:   12,
		},
	}
	srv := server.New(nil, store, &stubSink{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Pending int64                    `json:"pending"`
		Counts  map[core.JobStatus]int64 `json:"counts"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, int64(7), body.Pending)
	assert.Equal(t, int64(5), body.Counts[core.StatusQueued])
}

func TestHealthz(t *testing.T) {
	srv := server.New(nil, &stubStore{}, &stubSink{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
