package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNoRecipients    = errors.New("no recipients selected")
	ErrMissingSubject  = errors.New("subject is required")
	ErrMissingTemplate = errors.New("template is required")
)
