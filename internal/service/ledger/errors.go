package ledger

import "errors"

// Sentinel errors for the ledger.
var (
	// ErrNotFound is returned when no message matches the id or token.
	ErrNotFound = errors.New("tracked message not found")
	// ErrRecipientNotFound is returned when a selected recipient no longer exists.
	ErrRecipientNotFound = errors.New("recipient not found")
)
