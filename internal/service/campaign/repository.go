package campaign

import (
	"context"

	"github.com/ignite/mailtrack/internal/domain"
)

// Ledger is the part of the tracked message ledger the orchestrator writes.
type Ledger interface {
	Create(ctx context.Context, r domain.Recipient) (*domain.TrackedMessage, error)
	MarkSent(ctx context.Context, id int64) error
}

// Renderer renders a named template with string values.
type Renderer interface {
	Render(name string, data map[string]string) (string, error)
}
