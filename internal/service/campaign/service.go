package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/esp"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/service/ledger"
	"github.com/ignite/mailtrack/internal/service/sending"
	"github.com/ignite/mailtrack/internal/tracking"
)

// Config holds the sender identity and dispatch limits.
type Config struct {
	FromEmail       string
	FromName        string
	TrackingBaseURL string
	// Concurrency is how many recipients are in flight at once. 1 sends
	// sequentially.
	Concurrency     int
	DispatchTimeout time.Duration
}

// Service runs campaigns. Safe for concurrent use.
type Service struct {
	ledger     Ledger
	recipients ledger.RecipientSource
	standard   Renderer
	custom     Renderer
	sender     sending.Sender
	cfg        Config
}

// NewService creates a campaign service. standard renders plain campaigns
// and custom renders the personalised variant.
func NewService(l Ledger, recipients ledger.RecipientSource, standard, custom Renderer, sender sending.Sender, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	return &Service{
		ledger:     l,
		recipients: recipients,
		standard:   standard,
		custom:     custom,
		sender:     sender,
		cfg:        cfg,
	}
}

// Outcome is what happened for one recipient.
type Outcome struct {
	RecipientID int64  `json:"recipient_id"`
	MessageID   int64  `json:"message_id,omitempty"`
	Token       string `json:"token,omitempty"`
	Sent        bool   `json:"sent"`
	Stage       string `json:"stage,omitempty"` // where it failed: lookup, ledger, render, dispatch, mark_sent
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

// Report summarises a campaign run.
type Report struct {
	JobID    string    `json:"job_id,omitempty"`
	Total    int       `json:"total"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// Run sends job to every recipient it names. It returns an error only when
// the job is invalid or the recipients cannot be looked up; per-recipient
// failures are in the report.
func (s *Service) Run(ctx context.Context, job domain.CampaignJob) (*Report, error) {
	if len(job.RecipientIDs) == 0 {
		return nil, ErrNoRecipients
	}
	if strings.TrimSpace(job.Subject) == "" {
		return nil, ErrMissingSubject
	}
	if strings.TrimSpace(job.Template) == "" {
		return nil, ErrMissingTemplate
	}

	recipients, err := s.recipients.ListRecipients(ctx, job.RecipientIDs)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	found := make(map[int64]bool, len(recipients))
	for _, r := range recipients {
		found[r.ID] = true
	}

	report := &Report{JobID: job.ID}
	seen := make(map[int64]bool, len(job.RecipientIDs))
	for _, id := range job.RecipientIDs {
		if seen[id] || found[id] {
			seen[id] = true
			continue
		}
		seen[id] = true
		logger.Warn("campaign: recipient not found", "job_id", job.ID, "recipient_id", id)
		report.Outcomes = append(report.Outcomes, Outcome{
			RecipientID: id, Stage: "lookup", Err: ledger.ErrRecipientNotFound,
		})
	}

	outcomes := make([]Outcome, len(recipients))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i, r := range recipients {
		g.Go(func() error {
			outcomes[i] = s.sendOne(ctx, job, r)
			return nil
		})
	}
	g.Wait()

	report.Outcomes = append(report.Outcomes, outcomes...)
	for i := range report.Outcomes {
		o := &report.Outcomes[i]
		if o.Err != nil {
			o.Error = o.Err.Error()
		}
		if o.Sent {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	report.Total = len(report.Outcomes)

	logger.Info("campaign: run complete",
		"job_id", job.ID, "template", job.Template,
		"total", report.Total, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

func (s *Service) sendOne(ctx context.Context, job domain.CampaignJob, r domain.Recipient) Outcome {
	out := Outcome{RecipientID: r.ID}
	log := logger.With("job_id", job.ID, "recipient_id", r.ID)

	m, err := s.ledger.Create(ctx, r)
	if err != nil {
		log.Error("campaign: create ledger record failed", "error", err)
		out.Stage, out.Err = "ledger", err
		return out
	}
	out.MessageID, out.Token = m.ID, m.Token
	log = log.With("message_id", m.ID)

	trackingURL := tracking.URL(s.cfg.TrackingBaseURL, m.Token)
	data := map[string]string{
		"tracking_url": trackingURL,
		"trackingURL":  trackingURL,
		"dest_name":    r.Name,
		"name":         r.Name,
		"email":        r.Email,
	}
	renderer := s.standard
	subject := job.Subject
	var attachments []domain.Attachment
	if job.Custom != nil {
		renderer = s.custom
		data["header"] = job.Custom.Header
		data["texto"] = job.Custom.Text
		data["body"] = job.Custom.Text
		subject = fmt.Sprintf("%s, %s", r.Name, job.Subject)
		if job.Custom.Image != nil {
			attachments = []domain.Attachment{*job.Custom.Image}
		}
	}

	body, err := renderer.Render(job.Template, data)
	if err != nil {
		log.Error("campaign: render failed", "template", job.Template, "error", err)
		out.Stage, out.Err = "render", err
		return out
	}

	msg := &domain.EmailMessage{
		FromEmail:   s.cfg.FromEmail,
		FromName:    s.cfg.FromName,
		ToEmail:     r.Email,
		ToName:      r.Name,
		Subject:     subject,
		HTMLBody:    body,
		Attachments: attachments,
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	res, err := s.sender.Send(dctx, msg)
	cancel()
	if err == nil && !res.Accepted() {
		err = &esp.DispatchError{HTTPStatus: res.HTTPStatus, ProviderStatus: res.ProviderStatus, Raw: res.Raw,
			Err: errors.New("provider did not confirm message")}
	}
	if err != nil {
		fields := []interface{}{"template", job.Template, "error", err}
		var derr *esp.DispatchError
		if errors.As(err, &derr) {
			fields = append(fields, "http_status", derr.HTTPStatus, "provider_status", derr.ProviderStatus, "provider_response", derr.Raw)
		}
		log.Error("campaign: dispatch failed", fields...)
		out.Stage, out.Err = "dispatch", err
		return out
	}

	if err := s.ledger.MarkSent(ctx, m.ID); err != nil {
		log.Error("campaign: mark sent failed", "error", err)
		out.Stage, out.Err = "mark_sent", err
		return out
	}

	out.Sent = true
	log.Info("campaign: sent", "provider_message_id", res.MessageID)
	return out
}
