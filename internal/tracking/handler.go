package tracking

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/httputil"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/service/ledger"
)

const recordTimeout = 5 * time.Second

// Handler serves the open-tracking pixel.
type Handler struct {
	recorder OpenRecorder
	now      func() time.Time
}

// NewHandler creates a handler that reports opens to recorder.
func NewHandler(recorder OpenRecorder) *Handler {
	return &Handler{recorder: recorder, now: time.Now}
}

// Register mounts the tracking routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get(TrackPath+"{id}", h.HandleOpen)
	r.Get("/track/{id}", h.HandleOpen)
}

// HandleOpen records the open and always answers with the pixel. Unknown
// ids and storage failures are logged and never shown to the client.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSuffix(chi.URLParam(r, "id"), ".gif")

	evt := domain.OpenEvent{
		Token:     token,
		IPAddress: realIP(r),
		UserAgent: r.UserAgent(),
		At:        h.now().UTC(),
	}

	// Mail clients often drop the connection once the image bytes arrive;
	// the open is still recorded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
	err := h.recorder.RecordOpen(ctx, evt)
	cancel()

	switch {
	case err == nil:
		logger.Debug("tracking: open recorded", "token", token)
	case errors.Is(err, ledger.ErrNotFound):
		logger.Debug("tracking: unknown token", "token", token)
	default:
		logger.Warn("tracking: record open failed", "token", token, "error", err)
	}

	servePixel(w)
}

// HandleHealth answers liveness checks for the standalone tracking service.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func servePixel(w http.ResponseWriter) {
	httputil.NoCache(w)
	w.Header().Set("Content-Type", "image/gif")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
