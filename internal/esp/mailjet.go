package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/httpretry"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// MailjetConfig configures a MailjetSender.
type MailjetConfig struct {
	PublicKey  string
	PrivateKey string
	BaseURL    string        // default https://api.mailjet.com/v3.1
	Timeout    time.Duration // per call; default 30s
	MaxRetries int           // retries on 429/5xx; 0 disables
}

// MailjetSender sends through the Mailjet v3.1 Send API.
type MailjetSender struct {
	publicKey  string
	privateKey string
	baseURL    string
	timeout    time.Duration
	httpClient httpretry.HTTPDoer
}

// NewMailjetSender creates a sender. A nil client gets a plain http.Client
// wrapped with the configured retry policy.
func NewMailjetSender(cfg MailjetConfig, client httpretry.HTTPDoer) *MailjetSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mailjet.com/v3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{}, cfg.MaxRetries)
	}
	return &MailjetSender{
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: client,
	}
}

type mjAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mjMessage struct {
	From        mjAddress           `json:"From"`
	To          []mjAddress         `json:"To"`
	Subject     string              `json:"Subject"`
	HTMLPart    string              `json:"HTMLPart"`
	Attachments []domain.Attachment `json:"Attachments,omitempty"`
}

type mjSendRequest struct {
	Messages []mjMessage `json:"Messages"`
}

type mjSendResponse struct {
	Messages []struct {
		Status string `json:"Status"`
		To     []struct {
			Email       string      `json:"Email"`
			MessageUUID string      `json:"MessageUUID"`
			MessageID   json.Number `json:"MessageID"`
		} `json:"To"`
		Errors []struct {
			ErrorCode    string `json:"ErrorCode"`
			ErrorMessage string `json:"ErrorMessage"`
		} `json:"Errors"`
	} `json:"Messages"`
	ErrorMessage string `json:"ErrorMessage"`
}

// Send delivers msg. The message counts as sent only when Mailjet answers
// 2xx and reports Messages[0].Status == "success".
func (s *MailjetSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.publicKey == "" || s.privateKey == "" {
		return nil, &DispatchError{Provider: domain.ProviderMailjet, Err: fmt.Errorf("mailjet: %w", ErrNotConfigured)}
	}

	payload := mjSendRequest{Messages: []mjMessage{{
		From:        mjAddress{Email: msg.FromEmail, Name: msg.FromName},
		To:          []mjAddress{{Email: msg.ToEmail, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLPart:    msg.HTMLBody,
		Attachments: msg.Attachments,
	}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &DispatchError{Provider: domain.ProviderMailjet, Err: fmt.Errorf("encode request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return nil, &DispatchError{Provider: domain.ProviderMailjet, Err: err}
	}
	req.SetBasicAuth(s.publicKey, s.privateKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &DispatchError{Provider: domain.ProviderMailjet, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	result := &domain.SendResult{
		Provider:   domain.ProviderMailjet,
		HTTPStatus: resp.StatusCode,
		Raw:        truncate(raw),
	}
	if err != nil {
		return result, &DispatchError{Provider: domain.ProviderMailjet, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var decoded mjSendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return result, &DispatchError{
			Provider: domain.ProviderMailjet, HTTPStatus: resp.StatusCode, Raw: result.Raw,
			Err: fmt.Errorf("decode response: %w", err),
		}
	}
	if len(decoded.Messages) == 0 {
		reason := "response has no messages"
		if decoded.ErrorMessage != "" {
			reason = decoded.ErrorMessage
		}
		return result, &DispatchError{
			Provider: domain.ProviderMailjet, HTTPStatus: resp.StatusCode, Raw: result.Raw,
			Err: errors.New(reason),
		}
	}

	first := decoded.Messages[0]
	result.ProviderStatus = first.Status
	if len(first.To) > 0 {
		result.MessageID = first.To[0].MessageUUID
		if result.MessageID == "" {
			result.MessageID = first.To[0].MessageID.String()
		}
	}

	if !result.Accepted() {
		reason := "provider did not accept message"
		if len(first.Errors) > 0 {
			reason = first.Errors[0].ErrorCode + ": " + first.Errors[0].ErrorMessage
		}
		return result, &DispatchError{
			Provider:       domain.ProviderMailjet,
			HTTPStatus:     resp.StatusCode,
			ProviderStatus: first.Status,
			Raw:            result.Raw,
			Err:            errors.New(reason),
		}
	}

	logger.Debug("mailjet: message accepted",
		"email", msg.ToEmail, "message_id", result.MessageID, "http_status", resp.StatusCode)
	return result, nil
}
