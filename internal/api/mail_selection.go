package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ignite/mailtrack/internal/pkg/httputil"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

type selectionRequest struct {
	IDs []int64 `json:"ids"`
}

// HandleSelectRecipients stores the recipient ids picked in the admin.
//
//	POST /mail/selection/recipients
func (h *Handlers) HandleSelectRecipients(w http.ResponseWriter, r *http.Request) {
	ids, ok := readIDs(w, r, "recipient_id")
	if !ok {
		return
	}
	if err := h.sessions.SetRecipients(w, r, ids); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("api: recipients selected", "count", len(ids))
	httputil.OK(w, map[string]int{"selected": len(ids)})
}

// HandleSelectEmails stores the tracked message ids picked for export.
//
//	POST /mail/selection/emails
func (h *Handlers) HandleSelectEmails(w http.ResponseWriter, r *http.Request) {
	ids, ok := readIDs(w, r, "email_id")
	if !ok {
		return
	}
	if err := h.sessions.SetEmails(w, r, ids); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"selected": len(ids)})
}

// readIDs accepts a JSON body {"ids":[...]} or repeated form fields, each
// of which may hold a comma separated list.
func readIDs(w http.ResponseWriter, r *http.Request, field string) ([]int64, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req selectionRequest
		if !httputil.Decode(w, r, &req) {
			return nil, false
		}
		return req.IDs, true
	}

	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "invalid form")
		return nil, false
	}
	ids, err := parseIDs(r.Form[field])
	if err != nil {
		httputil.ValidationError(w, map[string]string{field: err.Error()})
		return nil, false
	}
	return ids, true
}

func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, &invalidIDError{value: part}
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type invalidIDError struct {
	value string
}

func (e *invalidIDError) Error() string {
	return "invalid id " + strconv.Quote(e.value)
}
