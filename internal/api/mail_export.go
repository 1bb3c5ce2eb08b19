package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/ignite/mailtrack/internal/export"
	"github.com/ignite/mailtrack/internal/pkg/httputil"
)

// HandleExportCSV downloads the tracked messages named by the repeated
// "id" query parameter, or the session's selected emails when absent.
//
//	GET /mail/export.csv
func (h *Handlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query()["id"])
	if err != nil {
		httputil.ValidationError(w, map[string]string{"id": err.Error()})
		return
	}
	if len(ids) == 0 {
		sel, err := h.sessions.Selection(r)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		ids = sel.EmailIDs
	}

	messages, err := h.messages.ListByIDs(r.Context(), ids)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	// Buffer so a write failure can still become a 500.
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, messages); err != nil {
		httputil.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
