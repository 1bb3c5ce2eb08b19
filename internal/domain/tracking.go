package domain

import "time"

// TrackedMessage is the ledger row for one dispatch attempt to one recipient.
//
// ID is the internal storage key. Token is the opaque value embedded in the
// tracking URL; it is random so that URLs cannot be enumerated.
// Sent and Opened only ever move from false to true, and OpenedAt is set
// together with Opened.
type TrackedMessage struct {
	ID             int64      `json:"id" db:"id"`
	Token          string     `json:"token" db:"token"`
	RecipientID    int64      `json:"recipient_id" db:"recipient_id"`
	RecipientEmail string     `json:"recipient_email,omitempty" db:"recipient_email"`
	RecipientName  string     `json:"recipient_name,omitempty" db:"recipient_name"`
	SendAttempted  bool       `json:"send_attempted" db:"send_attempted"`
	Sent           bool       `json:"sent" db:"sent"`
	Opened         bool       `json:"opened" db:"opened"`
	OpenedAt       *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// OpenEvent is a pixel fetch, published to SQS when the tracking endpoint
// runs apart from the ledger.
type OpenEvent struct {
	Token     string    `json:"token"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	At        time.Time `json:"at"`
}
