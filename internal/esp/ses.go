package esp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures an SESSender.
type SESConfig struct {
	Region           string
	AccessKey        string
	SecretKey        string
	ConfigurationSet string
	Timeout          time.Duration
}

// SESSender sends through AWS SES v2. Messages with attachments go out as
// raw MIME; everything else uses simple content.
type SESSender struct {
	client           SESAPI
	configurationSet string
	timeout          time.Duration
}

// NewSESSender builds an SES client from static keys, or from the default
// credential chain when no keys are given.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), cfg), nil
}

// NewSESSenderWithClient wraps an existing client.
func NewSESSenderWithClient(client SESAPI, cfg SESConfig) *SESSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SESSender{client: client, configurationSet: cfg.ConfigurationSet, timeout: cfg.Timeout}
}

// Send delivers msg. SES accepting the call and returning a message id is
// reported as provider status "success".
func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := (&mail.Address{Name: msg.FromName, Address: msg.FromEmail}).String()
	to := (&mail.Address{Name: msg.ToName, Address: msg.ToEmail}).String()

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	if len(msg.Attachments) == 0 {
		input.Content = &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		}
	} else {
		raw, err := buildRawMessage(from, to, msg)
		if err != nil {
			return nil, &DispatchError{Provider: domain.ProviderSES, Err: err}
		}
		input.Content = &types.EmailContent{Raw: &types.RawMessage{Data: raw}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		derr := &DispatchError{Provider: domain.ProviderSES, Err: err}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			derr.ProviderStatus = apiErr.ErrorCode()
			derr.Raw = apiErr.ErrorMessage()
		}
		return nil, derr
	}

	result := &domain.SendResult{Provider: domain.ProviderSES, HTTPStatus: 200}
	if out.MessageId != nil && *out.MessageId != "" {
		result.MessageID = *out.MessageId
		result.ProviderStatus = domain.ProviderStatusSuccess
	}
	if !result.Accepted() {
		return result, &DispatchError{Provider: domain.ProviderSES, HTTPStatus: 200, Err: errors.New("ses returned no message id")}
	}

	logger.Debug("ses: message accepted", "email", msg.ToEmail, "message_id", result.MessageID)
	return result, nil
}

// buildRawMessage assembles a multipart/mixed message with the HTML body
// followed by each attachment.
func buildRawMessage(from, to string, msg *domain.EmailMessage) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", w.Boundary())

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("ses: html part: %w", err)
	}
	if _, err := htmlPart.Write(wrapBase64(base64.StdEncoding.EncodeToString([]byte(msg.HTMLBody)))); err != nil {
		return nil, fmt.Errorf("ses: html part: %w", err)
	}

	for _, a := range msg.Attachments {
		if _, err := base64.StdEncoding.DecodeString(a.Base64Content); err != nil {
			return nil, fmt.Errorf("ses: attachment %q is not valid base64: %w", a.Filename, err)
		}
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", a.ContentType, a.Filename)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("ses: attachment part: %w", err)
		}
		if _, err := part.Write(wrapBase64(a.Base64Content)); err != nil {
			return nil, fmt.Errorf("ses: attachment part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ses: close multipart: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapBase64 breaks encoded content into 76-character lines.
func wrapBase64(s string) []byte {
	var b strings.Builder
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteString("\r\n")
		s = s[76:]
	}
	b.WriteString(s)
	b.WriteString("\r\n")
	return []byte(b.String())
}
