package ledger

import (
	"context"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// Repository defines the data access contract for tracked messages.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Insert persists m and returns its storage id.
	Insert(ctx context.Context, m *domain.TrackedMessage) (int64, error)

	// MarkSent sets sent=true. Calling it twice is a no-op.
	// Returns ErrNotFound if id does not exist.
	MarkSent(ctx context.Context, id int64) error

	// MarkOpened sets opened=true and opened_at=at only if the message is not
	// already opened, as one atomic step. It returns the stored opened_at,
	// which is the first caller's timestamp on every later call.
	// Returns ErrNotFound if token does not exist.
	MarkOpened(ctx context.Context, token string, at time.Time) (time.Time, error)

	// Get returns a single message. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.TrackedMessage, error)

	// GetByToken returns the message carrying token.
	GetByToken(ctx context.Context, token string) (*domain.TrackedMessage, error)

	// ListByIDs returns the messages among ids that exist, joined with their
	// recipient's email and name, ordered by id.
	ListByIDs(ctx context.Context, ids []int64) ([]domain.TrackedMessage, error)
}

// RecipientSource reads recipients from the contact system.
type RecipientSource interface {
	// ListRecipients returns the recipients among ids that exist, ordered by id.
	ListRecipients(ctx context.Context, ids []int64) ([]domain.Recipient, error)
}
