// Package esp implements sending.Sender for the supported delivery providers.
package esp

import (
	"errors"
	"fmt"

	"github.com/ignite/mailtrack/internal/domain"
)

// ErrDispatch matches every provider failure via errors.Is.
var ErrDispatch = errors.New("dispatch failed")

// ErrNotConfigured is wrapped when a provider is missing credentials.
var ErrNotConfigured = errors.New("provider not configured")

// DispatchError carries the provider's answer for a message it did not
// accept. HTTPStatus is zero when no response was received.
type DispatchError struct {
	Provider       domain.ProviderType
	HTTPStatus     int
	ProviderStatus string
	Raw            string
	Err            error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%s dispatch failed", e.Provider)
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (http %d", e.HTTPStatus)
		if e.ProviderStatus != "" {
			msg += ", status " + e.ProviderStatus
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDispatch.
func (e *DispatchError) Is(target error) bool { return target == ErrDispatch }

const maxRawLen = 2048

func truncate(b []byte) string {
	if len(b) > maxRawLen {
		return string(b[:maxRawLen]) + "...(truncated)"
	}
	return string(b)
}
