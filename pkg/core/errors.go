package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSite    = errors.New("lienharvest: unknown site")
	ErrSinkRejected   = errors.New("lienharvest: sink rejected records")
	ErrSessionExpired = errors.New("lienharvest: session deadline exceeded")
)

// TooManyResultsError signals that a search window matched more rows than
// the configured ceiling. It is not a failure: the trigger layer is expected
// to split the date range in half and re-invoke.
type TooManyResultsError struct {
	Count   int
	Ceiling int
}

func (e *TooManyResultsError) Error() string {
	return fmt.Sprintf("search returned %d results (ceiling %d); narrow the date range", e.Count, e.Ceiling)
}

// IsTooManyResults reports whether err carries the scale signal and, if so,
// returns the reported count.
func IsTooManyResults(err error) (int, bool) {
	var tmr *TooManyResultsError
	if errors.As(err, &tmr) {
		return tmr.Count, true
	}
	return 0, false
}
