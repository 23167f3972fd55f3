// Package sink delivers finished records downstream. The core treats the
// sink as a fire-and-forget append: hand over an ordered batch, get back
// the number of rows accepted, no read-back or reconciliation.
package sink

import (
	"context"

	"lienharvest/pkg/core"
)

// Sink accepts an ordered batch of finished records.
type Sink interface {
	Append(ctx context.Context, records []core.LienRecord) (int, error)
}

// Nop discards records, reporting them all accepted.
type Nop struct{}

func (Nop) Append(_ context.Context, records []core.LienRecord) (int, error) {
	return len(records), nil
}
