package tracking

import (
	"context"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// OpenRecorder accepts pixel fetches.
type OpenRecorder interface {
	RecordOpen(ctx context.Context, evt domain.OpenEvent) error
}

// OpenMarker is the ledger operation that opens are applied with.
type OpenMarker interface {
	MarkOpened(ctx context.Context, token string, at time.Time) (time.Time, error)
}

// LedgerRecorder applies opens to the ledger synchronously.
type LedgerRecorder struct {
	marker OpenMarker
}

// NewLedgerRecorder creates a recorder writing through marker.
func NewLedgerRecorder(marker OpenMarker) *LedgerRecorder {
	return &LedgerRecorder{marker: marker}
}

// RecordOpen marks the message opened at evt.At.
func (l *LedgerRecorder) RecordOpen(ctx context.Context, evt domain.OpenEvent) error {
	_, err := l.marker.MarkOpened(ctx, evt.Token, evt.At)
	return err
}
