package tracking

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/repository/memory"
	"github.com/ignite/mailtrack/internal/service/ledger"
)

type recorderFunc func(ctx context.Context, evt domain.OpenEvent) error

func (f recorderFunc) RecordOpen(ctx context.Context, evt domain.OpenEvent) error { return f(ctx, evt) }

func newRouter(rec OpenRecorder) http.Handler {
	r := chi.NewRouter()
	NewHandler(rec).Register(r)
	return r
}

func fetch(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone)")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertPixel(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content-type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Errorf("body is not the tracking pixel: % x", rec.Body.Bytes())
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("expected no-cache headers")
	}
}

func TestPixelBytes(t *testing.T) {
	if len(pixelGIF) != 43 {
		t.Fatalf("pixel length = %d, want 43", len(pixelGIF))
	}
	if string(pixelGIF[:6]) != "GIF89a" || pixelGIF[len(pixelGIF)-1] != 0x3b {
		t.Fatal("pixel is not a complete GIF89a stream")
	}
	p := Pixel()
	p[0] = 0
	if pixelGIF[0] != 'G' {
		t.Fatal("Pixel must return a copy")
	}
}

func TestURL(t *testing.T) {
	got := URL("https://t.example.com/", "0b8f8a8e-4a57-4c1f-9d0e-2f6a1c3b5d7e")
	want := "https://t.example.com/mail/track-email/0b8f8a8e-4a57-4c1f-9d0e-2f6a1c3b5d7e"
	if got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestHandleOpen_RecordsEvent(t *testing.T) {
	var got domain.OpenEvent
	h := newRouter(recorderFunc(func(_ context.Context, evt domain.OpenEvent) error {
		got = evt
		return nil
	}))

	assertPixel(t, fetch(t, h, "/mail/track-email/abc-123"))
	if got.Token != "abc-123" {
		t.Errorf("token = %q", got.Token)
	}
	if got.IPAddress != "203.0.113.7" {
		t.Errorf("ip = %q", got.IPAddress)
	}
	if got.UserAgent != "Mozilla/5.0 (iPhone)" || got.At.IsZero() {
		t.Errorf("event = %+v", got)
	}
}

func TestHandleOpen_AlternateRoute(t *testing.T) {
	var token string
	h := newRouter(recorderFunc(func(_ context.Context, evt domain.OpenEvent) error {
		token = evt.Token
		return nil
	}))
	assertPixel(t, fetch(t, h, "/track/abc-123.gif"))
	if token != "abc-123" {
		t.Errorf("token = %q", token)
	}
}

func TestHandleOpen_AlwaysServesPixel(t *testing.T) {
	for name, err := range map[string]error{
		"unknown": ledger.ErrNotFound,
		"storage": errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			h := newRouter(recorderFunc(func(context.Context, domain.OpenEvent) error { return err }))
			assertPixel(t, fetch(t, h, "/mail/track-email/whatever"))
		})
	}
}

func TestHandleOpen_RecordSurvivesClientCancel(t *testing.T) {
	var ctxErr error
	h := newRouter(recorderFunc(func(ctx context.Context, _ domain.OpenEvent) error {
		ctxErr = ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/mail/track-email/x", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assertPixel(t, rec)
	if ctxErr != nil {
		t.Errorf("recorder saw cancelled context: %v", ctxErr)
	}
}

func TestHandleOpen_WithLedger(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(memory.NewTrackedMessageRepo(nil))
	m, err := svc.Create(ctx, domain.Recipient{ID: 1, Email: "ana@example.com", Name: "Ana"})
	if err != nil {
		t.Fatal(err)
	}
	h := newRouter(NewLedgerRecorder(svc))

	assertPixel(t, fetch(t, h, "/mail/track-email/"+m.Token))
	first, _ := svc.Get(ctx, m.ID)
	if !first.Opened || first.OpenedAt == nil {
		t.Fatalf("expected opened, got %+v", first)
	}
	if first.Sent {
		t.Error("open must not set sent")
	}

	time.Sleep(5 * time.Millisecond)
	assertPixel(t, fetch(t, h, "/mail/track-email/"+m.Token))
	second, _ := svc.Get(ctx, m.ID)
	if !second.OpenedAt.Equal(*first.OpenedAt) {
		t.Errorf("openedAt changed from %v to %v", first.OpenedAt, second.OpenedAt)
	}

	assertPixel(t, fetch(t, h, "/mail/track-email/not-a-token"))
}

func TestHandleOpen_ConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(memory.NewTrackedMessageRepo(nil))
	m, _ := svc.Create(ctx, domain.Recipient{ID: 1})
	h := newRouter(NewLedgerRecorder(svc))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/mail/track-email/"+m.Token, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d", rec.Code)
			}
		}()
	}
	wg.Wait()

	stored, _ := svc.Get(ctx, m.ID)
	again, err := svc.MarkOpened(ctx, m.Token, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(*stored.OpenedAt) {
		t.Errorf("openedAt not stable: %v vs %v", again, stored.OpenedAt)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if ip := realIP(req); ip != "192.0.2.1" {
		t.Errorf("realIP = %q", ip)
	}
	req.Header.Set("X-Real-Ip", "198.51.100.2")
	if ip := realIP(req); ip != "198.51.100.2" {
		t.Errorf("realIP = %q", ip)
	}
}
