package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"lienharvest/pkg/core"
)

const sheetName = "Liens"

var headers = []string{
	"State",
	"Source",
	"County",
	"UCC Type",
	"Document Type",
	"Debtor Name",
	"Debtor Address",
	"File Number",
	"Secured Party Name",
	"Secured Party Address",
	"Status",
	"Filing Date",
	"Lapse Date",
	"PDF Filename",
	"Error",
}

// XLSXSink appends records to a workbook on disk, creating it with a
// header row on first use. Appends are serialized; the workbook is
// rewritten atomically per batch so a crash never leaves a torn file
// visible.
type XLSXSink struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewXLSXSink creates a sink writing to the workbook at path.
func NewXLSXSink(path string, logger *slog.Logger) *XLSXSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXSink{path: path, logger: logger}
}

// Append adds the records as rows after the current last row.
func (s *XLSXSink) Append(ctx context.Context, records []core.LienRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	f, firstRow, err := s.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		row := firstRow + i
		values := []any{
			r.State,
			r.Source,
			r.County,
			r.UCCType,
			r.DocumentType,
			r.DebtorName,
			r.DebtorAddress,
			r.FileNumber,
			r.SecuredPartyName,
			r.SecuredPartyAddress,
			r.Status,
			r.FilingDate,
			r.LapseDate,
			r.PDFFilename,
			r.Error,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return 0, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return 0, err
			}
		}
	}

	if err := s.save(f); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("sink append",
		"rows", len(records),
		"path", s.path,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return len(records), nil
}

// open loads the workbook or creates it with headers, returning the first
// free row index (1-based).
func (s *XLSXSink) open() (*excelize.File, int, error) {
	if _, err := os.Stat(s.path); err == nil {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, 0, fmt.Errorf("open workbook: %w", err)
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("read workbook: %w", err)
		}
		return f, len(rows) + 1, nil
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, 0, err
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			f.Close()
			return nil, 0, err
		}
	}
	return f, 2, nil
}

// save writes through a temp file and renames over the target.
func (s *XLSXSink) save(f *excelize.File) error {
	tmp := s.path + ".tmp"
	if err := f.SaveAs(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
