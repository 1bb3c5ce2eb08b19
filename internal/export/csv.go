// Package export writes tracked message reports.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// Header is the first CSV row.
var Header = []string{
	"Email ID", "Recipient Email", "Recipient Name",
	"Send Attempted", "Sent", "Opened", "Opened At",
}

// Filename is the download name offered to browsers.
const Filename = "emails.csv"

// WriteCSV writes one header row then one row per message in the given
// order. Booleans are "True"/"False" and Opened At is RFC 3339 in UTC, or
// empty when the message was never opened.
func WriteCSV(w io.Writer, messages []domain.TrackedMessage) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range messages {
		if err := cw.Write(row(m)); err != nil {
			return fmt.Errorf("write csv row %d: %w", m.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(m domain.TrackedMessage) []string {
	openedAt := ""
	if m.OpenedAt != nil {
		openedAt = m.OpenedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatInt(m.ID, 10),
		m.RecipientEmail,
		m.RecipientName,
		boolCell(m.SendAttempted),
		boolCell(m.Sent),
		boolCell(m.Opened),
		openedAt,
	}
}

func boolCell(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
