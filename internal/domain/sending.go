package domain

// ProviderType identifies the delivery provider.
type ProviderType string

const (
	ProviderMailjet ProviderType = "mailjet"
	ProviderSES     ProviderType = "ses"
)

// ProviderStatusSuccess is the per-message status a provider reports when it
// accepted the message.
const ProviderStatusSuccess = "success"

// Attachment is a file carried inline in the provider request.
type Attachment struct {
	ContentType   string `json:"ContentType"`
	Filename      string `json:"Filename"`
	Base64Content string `json:"Base64Content"`
}

// EmailMessage is a fully rendered message ready for a provider. Template
// rendering and tracking URL injection are complete by the time one exists.
type EmailMessage struct {
	FromEmail   string       `json:"from_email"`
	FromName    string       `json:"from_name"`
	ToEmail     string       `json:"to_email"`
	ToName      string       `json:"to_name"`
	Subject     string       `json:"subject"`
	HTMLBody    string       `json:"html_body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendResult is the provider's verdict for one message.
type SendResult struct {
	Provider       ProviderType `json:"provider"`
	HTTPStatus     int          `json:"http_status"`
	ProviderStatus string       `json:"provider_status"`
	MessageID      string       `json:"message_id,omitempty"`
	Raw            string       `json:"-"`
}

// Accepted reports whether the provider confirmed the message.
func (r *SendResult) Accepted() bool {
	return r != nil && r.HTTPStatus/100 == 2 && r.ProviderStatus == ProviderStatusSuccess
}
