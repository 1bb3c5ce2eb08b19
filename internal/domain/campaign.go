package domain

import (
	"strings"
	"time"
)

// Form limits for campaign requests.
const (
	MaxSubjectLength = 200
	MaxHeaderLength  = 200
	MaxTextLength    = 1000
)

// CampaignJob is one queued send: a subject and template applied to a set of
// recipients. Custom is set for the personalised variant.
type CampaignJob struct {
	ID           string         `json:"id"`
	RecipientIDs []int64        `json:"recipient_ids"`
	Subject      string         `json:"subject"`
	Template     string         `json:"template"`
	Custom       *CustomContent `json:"custom,omitempty"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
}

// CustomContent carries the extra fields of a personalised campaign.
type CustomContent struct {
	Header string      `json:"header"`
	Text   string      `json:"text"`
	Image  *Attachment `json:"image,omitempty"`
}

// Validate checks the job against the form limits and returns per-field
// messages. An empty map means the job is valid.
func (j *CampaignJob) Validate() map[string]string {
	errs := map[string]string{}
	if len(j.RecipientIDs) == 0 {
		errs["recipients"] = "no recipients selected"
	}
	subject := strings.TrimSpace(j.Subject)
	switch {
	case subject == "":
		errs["subject"] = "required"
	case len([]rune(subject)) > MaxSubjectLength:
		errs["subject"] = "must be at most 200 characters"
	}
	if strings.TrimSpace(j.Template) == "" {
		errs["email"] = "required"
	}
	if j.Custom != nil {
		switch {
		case strings.TrimSpace(j.Custom.Header) == "":
			errs["header"] = "required"
		case len([]rune(j.Custom.Header)) > MaxHeaderLength:
			errs["header"] = "must be at most 200 characters"
		}
		switch {
		case strings.TrimSpace(j.Custom.Text) == "":
			errs["texto"] = "required"
		case len([]rune(j.Custom.Text)) > MaxTextLength:
			errs["texto"] = "must be at most 1000 characters"
		}
	}
	return errs
}
