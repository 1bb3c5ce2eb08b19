package esp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"

	"github.com/ignite/mailtrack/internal/domain"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	out   *sesv2.SendEmailOutput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestSESSender_Simple(t *testing.T) {
	fake := &fakeSES{out: &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}}
	sender := NewSESSenderWithClient(fake, SESConfig{ConfigurationSet: "tracking"})

	res, err := sender.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Accepted() || res.MessageID != "ses-1" {
		t.Errorf("result = %+v", res)
	}
	in := fake.input
	if aws.ToString(in.FromEmailAddress) != `"Plataforma" <noreply@example.com>` {
		t.Errorf("from = %q", aws.ToString(in.FromEmailAddress))
	}
	if in.Destination.ToAddresses[0] != `"Ana" <ana@example.com>` {
		t.Errorf("to = %q", in.Destination.ToAddresses[0])
	}
	if in.Content.Simple == nil || aws.ToString(in.Content.Simple.Body.Html.Data) != "<p>hi</p>" {
		t.Error("expected simple html content")
	}
	if aws.ToString(in.ConfigurationSetName) != "tracking" {
		t.Error("configuration set not applied")
	}
}

func TestSESSender_RawWithAttachment(t *testing.T) {
	fake := &fakeSES{out: &sesv2.SendEmailOutput{MessageId: aws.String("ses-2")}}
	sender := NewSESSenderWithClient(fake, SESConfig{})

	msg := testMessage()
	msg.Attachments = []domain.Attachment{{ContentType: "image/png", Filename: "image", Base64Content: "iVBORw0KGgo="}}
	if _, err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fake.input.Content.Raw == nil {
		t.Fatal("expected raw content")
	}
	raw := string(fake.input.Content.Raw.Data)
	for _, want := range []string{
		"Subject: =?utf-8?q?Ol=C3=A1?=",
		"multipart/mixed",
		`Content-Disposition: attachment; filename="image"`,
		"iVBORw0KGgo=",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
}

func TestSESSender_BadAttachment(t *testing.T) {
	sender := NewSESSenderWithClient(&fakeSES{}, SESConfig{})
	msg := testMessage()
	msg.Attachments = []domain.Attachment{{ContentType: "image/png", Filename: "image", Base64Content: "!!not base64!!"}}
	if _, err := sender.Send(context.Background(), msg); !errors.Is(err, ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
}

func TestSESSender_APIError(t *testing.T) {
	fake := &fakeSES{err: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."}}
	sender := NewSESSenderWithClient(fake, SESConfig{})

	_, err := sender.Send(context.Background(), testMessage())
	var derr *DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DispatchError, got %v", err)
	}
	if derr.ProviderStatus != "MessageRejected" || derr.Provider != domain.ProviderSES {
		t.Errorf("DispatchError = %+v", derr)
	}
}
