// Package sending defines the contract between the campaign orchestrator and
// the delivery providers.
//
// Each provider (Mailjet, SES) implements Sender in the esp package. The
// orchestrator depends only on this interface so tests can substitute fakes.
package sending

import (
	"context"

	"github.com/ignite/mailtrack/internal/domain"
)

// Sender delivers a single rendered message through a provider.
// Implementations must be safe for concurrent use.
//
// A nil error means the provider confirmed the message (Accepted is true on
// the result). Any other outcome returns an error matching esp.ErrDispatch,
// together with whatever result could be decoded.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	return f(ctx, msg)
}
