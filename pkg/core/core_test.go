package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lienharvest/pkg/core"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := core.Fingerprint("ca_sos", "U240001234", "01/15/2024")
	b := core.Fingerprint("ca_sos", "U240001234", "01/15/2024")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_DistinguishesIdentityFields(t *testing.T) {
	base := core.Fingerprint("ca_sos", "U240001234", "01/15/2024")
	assert.NotEqual(t, base, core.Fingerprint("tx_sos", "U240001234", "01/15/2024"))
	assert.NotEqual(t, base, core.Fingerprint("ca_sos", "U240009999", "01/15/2024"))
	assert.NotEqual(t, base, core.Fingerprint("ca_sos", "U240001234", "01/16/2024"))
}

func TestIdentity(t *testing.T) {
	rec := core.LienRecord{
		Source:     "ca_sos",
		FileNumber: "U240001234",
		FilingDate: "01/15/2024",
		DebtorName: "ACME LLC",
	}
	assert.Equal(t, core.DiscoveredFiling{
		Source:     "ca_sos",
		FileNumber: "U240001234",
		FilingDate: "01/15/2024",
	}, rec.Identity())
}

func TestCursor_IsZero(t *testing.T) {
	assert.True(t, core.Cursor{}.IsZero())
	assert.True(t, core.Cursor{Page: 1, Row: 0}.IsZero())
	assert.False(t, core.Cursor{Page: 1, Row: 3}.IsZero())
	assert.False(t, core.Cursor{Page: 2, Row: 0}.IsZero())
}

func TestJob_Terminal(t *testing.T) {
	cases := map[core.JobStatus]bool{
		core.StatusQueued:     false,
		core.StatusProcessing: false,
		core.StatusFailed:     false,
		core.StatusDone:       true,
		core.StatusAbandoned:  true,
	}
	for status, terminal := range cases {
		job := &core.Job{Status: status}
		assert.Equal(t, terminal, job.Terminal(), "status %s", status)
	}
}

func TestIsTooManyResults(t *testing.T) {
	err := &core.TooManyResultsError{Count: 1450, Ceiling: 1000}
	count, ok := core.IsTooManyResults(err)
	require.True(t, ok)
	assert.Equal(t, 1450, count)

	wrapped := fmt.Errorf("scan window: %w", err)
	count, ok = core.IsTooManyResults(wrapped)
	require.True(t, ok)
	assert.Equal(t, 1450, count)

	_, ok = core.IsTooManyResults(errors.New("plain failure"))
	assert.False(t, ok)

	_, ok = core.IsTooManyResults(nil)
	assert.False(t, ok)
}

func TestTooManyResultsError_Message(t *testing.T) {
	err := &core.TooManyResultsError{Count: 1450, Ceiling: 1000}
	assert.Contains(t, err.Error(), "1450")
	assert.Contains(t, err.Error(), "1000")
}
