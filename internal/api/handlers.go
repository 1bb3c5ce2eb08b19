package api

import (
	"context"
	"io"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/session"
)

// JobEnqueuer accepts campaign jobs for background sending.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *domain.CampaignJob) error
}

// TemplateCatalog lists the templates a form may pick from.
type TemplateCatalog interface {
	List() ([]string, error)
	Has(name string) bool
}

// MessageLister loads tracked messages for export.
type MessageLister interface {
	ListByIDs(ctx context.Context, ids []int64) ([]domain.TrackedMessage, error)
}

// ImagePreparer turns an uploaded image into an attachment.
type ImagePreparer interface {
	Prepare(ctx context.Context, filename string, r io.Reader) (*domain.Attachment, error)
}

// Handlers serves the mail admin endpoints.
type Handlers struct {
	queue            JobEnqueuer
	templates        TemplateCatalog
	customTemplates  TemplateCatalog
	messages         MessageLister
	images           ImagePreparer
	sessions         *session.Manager
	adminRedirectURL string
}

// HandlersConfig groups the collaborators of Handlers.
type HandlersConfig struct {
	Queue            JobEnqueuer
	Templates        TemplateCatalog
	CustomTemplates  TemplateCatalog
	Messages         MessageLister
	Images           ImagePreparer
	Sessions         *session.Manager
	AdminRedirectURL string
}

// NewHandlers creates the mail handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	if cfg.AdminRedirectURL == "" {
		cfg.AdminRedirectURL = "/admin/mail/recipient/"
	}
	return &Handlers{
		queue:            cfg.Queue,
		templates:        cfg.Templates,
		customTemplates:  cfg.CustomTemplates,
		messages:         cfg.Messages,
		images:           cfg.Images,
		sessions:         cfg.Sessions,
		adminRedirectURL: cfg.AdminRedirectURL,
	}
}
