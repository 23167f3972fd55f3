// Package browser defines the boundary to the external automation
// capability: the DOM primitives the extraction pipeline needs, a bounded
// retry wrapper for flaky UI interactions, and the rate limiter every
// automation call passes through.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotVisible is returned when a locator did not become visible within
// its timeout. It is the transient error class the per-step retry absorbs.
var ErrNotVisible = errors.New("browser: element not visible")

// Page is one interactive automation session against a source website.
// Implementations are not safe for concurrent use; a session belongs to a
// single logical job at a time.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, locator, value string) error
	Click(ctx context.Context, locator string) error
	SelectOption(ctx context.Context, locator, label string) error
	Press(ctx context.Context, key string) error

	// Text returns the trimmed text content of the first element matching
	// the locator, or ErrNotVisible.
	Text(ctx context.Context, locator string) (string, error)

	// WaitVisible blocks until the locator is visible or the timeout
	// elapses, returning ErrNotVisible on expiry.
	WaitVisible(ctx context.Context, locator string, timeout time.Duration) error

	// Visible reports current visibility without waiting.
	Visible(ctx context.Context, locator string) bool

	// Count returns the number of elements matching the locator.
	Count(ctx context.Context, locator string) (int, error)

	// Download triggers the control and stores the resulting document at
	// dest.
	Download(ctx context.Context, locator, dest string) error

	// Close tears the session down. Safe to call more than once.
	Close(ctx context.Context) error
}

// Connector opens new automation sessions. The worker opens one session
// per claimed job.
type Connector interface {
	NewPage(ctx context.Context) (Page, error)
}
