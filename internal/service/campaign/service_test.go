package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/esp"
	"github.com/ignite/mailtrack/internal/repository/memory"
	"github.com/ignite/mailtrack/internal/service/campaign"
	"github.com/ignite/mailtrack/internal/service/ledger"
	"github.com/ignite/mailtrack/internal/template"
)

// fakeRenderer renders "<name>|key=value;..." so tests can see the context.
type fakeRenderer struct {
	mu    sync.Mutex
	fail  map[string]bool // recipient names whose render fails
	calls []map[string]string
}

func (f *fakeRenderer) Render(name string, data map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, data)
	if f.fail[data["dest_name"]] {
		return "", &template.Error{Name: name, Op: "load", Err: errors.New("no such file")}
	}
	return fmt.Sprintf("%s|%s|%s", name, data["dest_name"], data["tracking_url"]), nil
}

type fakeSender struct {
	mu       sync.Mutex
	msgs     []*domain.EmailMessage
	respond  func(msg *domain.EmailMessage) (*domain.SendResult, error)
	inflight int32
	maxSeen  int32
}

func (f *fakeSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}

	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(msg)
	}
	return &domain.SendResult{HTTPStatus: 200, ProviderStatus: "success", MessageID: "mj-" + msg.ToEmail}, nil
}

type fixture struct {
	svc      *campaign.Service
	ledger   *ledger.Service
	standard *fakeRenderer
	custom   *fakeRenderer
	sender   *fakeSender
}

func newFixture(concurrency int) *fixture {
	recipients := memory.NewRecipientRepo(
		domain.Recipient{ID: 1, Email: "ana@example.com", Name: "Ana"},
		domain.Recipient{ID: 2, Email: "bruno@example.com", Name: "Bruno"},
	)
	l := ledger.NewService(memory.NewTrackedMessageRepo(recipients))
	f := &fixture{
		ledger:   l,
		standard: &fakeRenderer{fail: map[string]bool{}},
		custom:   &fakeRenderer{fail: map[string]bool{}},
		sender:   &fakeSender{},
	}
	f.svc = campaign.NewService(l, recipients, f.standard, f.custom, f.sender, campaign.Config{
		FromEmail:       "noreply@example.com",
		FromName:        "Plataforma",
		TrackingBaseURL: "https://t.example.com",
		Concurrency:     concurrency,
		DispatchTimeout: time.Second,
	})
	return f
}

func (f *fixture) message(t *testing.T, id int64) *domain.TrackedMessage {
	t.Helper()
	m, err := f.ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return m
}

func job(ids ...int64) domain.CampaignJob {
	return domain.CampaignJob{ID: "job-1", RecipientIDs: ids, Subject: "Novidades", Template: "welcome.html"}
}

func TestRun_TwoRecipients(t *testing.T) {
	f := newFixture(1)

	report, err := f.svc.Run(context.Background(), job(1, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 2 || report.Sent != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	if len(f.sender.msgs) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(f.sender.msgs))
	}
	if f.sender.msgs[0].ToEmail == f.sender.msgs[1].ToEmail {
		t.Error("both calls went to the same recipient")
	}
	for _, msg := range f.sender.msgs {
		if msg.FromEmail != "noreply@example.com" || msg.FromName != "Plataforma" || msg.Subject != "Novidades" {
			t.Errorf("unexpected message header fields: %+v", msg)
		}
	}

	url0 := f.standard.calls[0]["tracking_url"]
	url1 := f.standard.calls[1]["tracking_url"]
	prefix := "https://t.example.com/mail/track-email/"
	if !strings.HasPrefix(url0, prefix) || !strings.HasPrefix(url1, prefix) || url0 == url1 {
		t.Errorf("tracking urls = %q, %q", url0, url1)
	}

	for _, o := range report.Outcomes {
		m := f.message(t, o.MessageID)
		if !m.Sent || m.Opened {
			t.Errorf("message %d state = %+v", m.ID, m)
		}
		if !strings.HasSuffix(f.standard.calls[o.RecipientID-1]["tracking_url"], m.Token) {
			t.Errorf("recipient %d url does not carry its token", o.RecipientID)
		}
	}
}

func TestRun_RecordExistsBeforeDispatch(t *testing.T) {
	f := newFixture(1)
	f.sender.respond = func(msg *domain.EmailMessage) (*domain.SendResult, error) {
		token := msg.HTMLBody[strings.LastIndex(msg.HTMLBody, "/")+1:]
		m, err := f.ledger.GetByToken(context.Background(), token)
		if err != nil {
			t.Errorf("no ledger record at dispatch time: %v", err)
		} else if m.Sent || m.Opened || !m.SendAttempted {
			t.Errorf("record state at dispatch = %+v", m)
		}
		return &domain.SendResult{HTTPStatus: 200, ProviderStatus: "success"}, nil
	}

	if _, err := f.svc.Run(context.Background(), job(1)); err != nil {
		t.Fatal(err)
	}
}

func TestRun_NetworkErrorIsolated(t *testing.T) {
	f := newFixture(1)
	f.sender.respond = func(msg *domain.EmailMessage) (*domain.SendResult, error) {
		if msg.ToEmail == "ana@example.com" {
			return nil, &esp.DispatchError{Provider: domain.ProviderMailjet, Err: errors.New("connection reset")}
		}
		return &domain.SendResult{HTTPStatus: 200, ProviderStatus: "success"}, nil
	}

	report, err := f.svc.Run(context.Background(), job(1, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}

	byRecipient := map[int64]campaign.Outcome{}
	for _, o := range report.Outcomes {
		byRecipient[o.RecipientID] = o
	}
	ana, bruno := byRecipient[1], byRecipient[2]
	if ana.Sent || ana.Stage != "dispatch" || !errors.Is(ana.Err, esp.ErrDispatch) {
		t.Errorf("ana outcome = %+v", ana)
	}
	if f.message(t, ana.MessageID).Sent {
		t.Error("failed recipient must stay unsent")
	}
	if !bruno.Sent || !f.message(t, bruno.MessageID).Sent {
		t.Errorf("bruno outcome = %+v", bruno)
	}
}

func TestRun_Non2xxAndNonSuccessStatusLeaveUnsent(t *testing.T) {
	cases := map[string]*domain.SendResult{
		"200 error status": {HTTPStatus: 200, ProviderStatus: "error"},
		"500":              {HTTPStatus: 500, ProviderStatus: "success"},
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(1)
			f.sender.respond = func(*domain.EmailMessage) (*domain.SendResult, error) { return res, nil }

			report, err := f.svc.Run(context.Background(), job(1))
			if err != nil {
				t.Fatal(err)
			}
			o := report.Outcomes[0]
			if o.Sent || !errors.Is(o.Err, esp.ErrDispatch) {
				t.Errorf("outcome = %+v", o)
			}
			if f.message(t, o.MessageID).Sent {
				t.Error("message marked sent without provider success")
			}
		})
	}
}

func TestRun_TemplateErrorSkipsRecipient(t *testing.T) {
	f := newFixture(1)
	f.standard.fail["Ana"] = true

	report, err := f.svc.Run(context.Background(), job(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(f.sender.msgs) != 1 || f.sender.msgs[0].ToEmail != "bruno@example.com" {
		t.Errorf("dispatches = %+v", f.sender.msgs)
	}
	for _, o := range report.Outcomes {
		if o.RecipientID == 1 {
			if o.Stage != "render" || !errors.Is(o.Err, template.ErrTemplate) {
				t.Errorf("ana outcome = %+v", o)
			}
			m := f.message(t, o.MessageID)
			if m.Sent || !m.SendAttempted {
				t.Errorf("ana record = %+v", m)
			}
		}
	}
}

func TestRun_CustomVariant(t *testing.T) {
	f := newFixture(1)
	image := &domain.Attachment{ContentType: "image/png", Filename: "image", Base64Content: "iVBORw0KGgo="}
	j := job(1)
	j.Template = "promo.html"
	j.Subject = "Promoção"
	j.Custom = &domain.CustomContent{Header: "Oferta", Text: "Só hoje", Image: image}

	report, err := f.svc.Run(context.Background(), j)
	if err != nil || report.Sent != 1 {
		t.Fatalf("Run: %+v, %v", report, err)
	}
	if len(f.standard.calls) != 0 || len(f.custom.calls) != 1 {
		t.Fatalf("custom renderer not used: standard=%d custom=%d", len(f.standard.calls), len(f.custom.calls))
	}
	data := f.custom.calls[0]
	if data["header"] != "Oferta" || data["texto"] != "Só hoje" || data["dest_name"] != "Ana" {
		t.Errorf("custom context = %v", data)
	}
	msg := f.sender.msgs[0]
	if msg.Subject != "Ana, Promoção" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0] != *image {
		t.Errorf("attachments = %+v", msg.Attachments)
	}
}

func TestRun_MissingRecipient(t *testing.T) {
	f := newFixture(1)
	report, err := f.svc.Run(context.Background(), job(1, 99, 1))
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 || report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Outcomes[0].RecipientID != 99 || !errors.Is(report.Outcomes[0].Err, ledger.ErrRecipientNotFound) {
		t.Errorf("missing outcome = %+v", report.Outcomes[0])
	}
}

func TestRun_InvalidJob(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, domain.CampaignJob{Subject: "s", Template: "t"}); !errors.Is(err, campaign.ErrNoRecipients) {
		t.Errorf("got %v", err)
	}
	if _, err := f.svc.Run(ctx, domain.CampaignJob{RecipientIDs: []int64{1}, Template: "t"}); !errors.Is(err, campaign.ErrMissingSubject) {
		t.Errorf("got %v", err)
	}
	if _, err := f.svc.Run(ctx, domain.CampaignJob{RecipientIDs: []int64{1}, Subject: "s"}); !errors.Is(err, campaign.ErrMissingTemplate) {
		t.Errorf("got %v", err)
	}
	if len(f.sender.msgs) != 0 {
		t.Error("invalid job dispatched mail")
	}
}

type failingRecipients struct{}

func (failingRecipients) ListRecipients(context.Context, []int64) ([]domain.Recipient, error) {
	return nil, errors.New("contacts db unavailable")
}

func TestRun_RecipientLookupFailure(t *testing.T) {
	l := ledger.NewService(memory.NewTrackedMessageRepo(nil))
	svc := campaign.NewService(l, failingRecipients{}, &fakeRenderer{}, &fakeRenderer{}, &fakeSender{}, campaign.Config{})
	if _, err := svc.Run(context.Background(), job(1)); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	var rs []domain.Recipient
	var ids []int64
	for i := int64(1); i <= 20; i++ {
		rs = append(rs, domain.Recipient{ID: i, Email: fmt.Sprintf("r%d@example.com", i), Name: fmt.Sprintf("R%d", i)})
		ids = append(ids, i)
	}
	recipients := memory.NewRecipientRepo(rs...)
	l := ledger.NewService(memory.NewTrackedMessageRepo(recipients))
	sender := &fakeSender{}
	sender.respond = func(msg *domain.EmailMessage) (*domain.SendResult, error) {
		time.Sleep(5 * time.Millisecond)
		if msg.ToEmail == "r7@example.com" {
			return nil, &esp.DispatchError{Err: errors.New("boom")}
		}
		return &domain.SendResult{HTTPStatus: 200, ProviderStatus: "success"}, nil
	}
	svc := campaign.NewService(l, recipients, &fakeRenderer{}, &fakeRenderer{}, sender, campaign.Config{Concurrency: 4})

	report, err := svc.Run(context.Background(), job(ids...))
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 20 || report.Sent != 19 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if peak := atomic.LoadInt32(&sender.maxSeen); peak > 4 {
		t.Errorf("max in flight = %d, want <= 4", peak)
	}
}

func TestRun_LiquidTemplateGetsTrackingURL(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hi.html"),
		[]byte("Hi {{ name }}, see {{ trackingURL }} ({{ tracking_url }})"), 0644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(1)
	renderer := template.NewRenderer(dir)
	svc := campaign.NewService(f.ledger, memory.NewRecipientRepo(
		domain.Recipient{ID: 1, Email: "ana@example.com", Name: "Ana"},
	), renderer, renderer, f.sender, campaign.Config{
		FromEmail:       "noreply@example.com",
		TrackingBaseURL: "https://t.example.com",
		DispatchTimeout: time.Second,
	})

	j := job(1)
	j.Template = "hi.html"
	report, err := svc.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Sent != 1 {
		t.Fatalf("report = %+v", report)
	}

	url := "https://t.example.com/mail/track-email/" + report.Outcomes[0].Token
	want := fmt.Sprintf("Hi Ana, see %s (%s)", url, url)
	if got := f.sender.msgs[0].HTMLBody; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}
