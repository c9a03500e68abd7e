package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEventID_Format(t *testing.T) {
	req := require.New(t)
	at := time.UnixMilli(1760000000123)

	id := NewEventID("payment.failed", at)
	other := NewEventID("payment.failed", at)

	req.True(strings.HasPrefix(id, "payment.failed-1760000000123-"))
	req.NotEqual(id, other)
}

func TestStatus_Predicates(t *testing.T) {
	req := require.New(t)
	req.True(StatusCompleted.IsTerminal())
	req.True(StatusFailed.IsTerminal())
	req.False(StatusRetryPending.IsTerminal())
	req.True(StatusPending.IsPending())
	req.True(StatusRetryPending.IsPending())
	req.False(StatusProcessing.IsPending())
}

func TestRecord_Elapsed(t *testing.T) {
	req := require.New(t)
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	record := Record{Status: StatusCompleted, Timestamp: start, CompletedAt: start.Add(150 * time.Millisecond)}
	req.Equal(150*time.Millisecond, record.Elapsed())

	record = Record{Status: StatusFailed, Timestamp: start, FailedAt: start.Add(7 * time.Second)}
	req.Equal(7*time.Second, record.Elapsed())

	record = Record{Status: StatusRetryPending, Timestamp: start}
	req.Zero(record.Elapsed())
}
