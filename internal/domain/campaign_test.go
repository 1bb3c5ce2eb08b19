package domain

import (
	"strings"
	"testing"
)

func TestCampaignJobValidate(t *testing.T) {
	valid := CampaignJob{RecipientIDs: []int64{1}, Subject: "Hello", Template: "welcome.html"}
	if errs := valid.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid job, got %v", errs)
	}

	tests := []struct {
		name  string
		job   CampaignJob
		field string
	}{
		{"no recipients", CampaignJob{Subject: "s", Template: "t.html"}, "recipients"},
		{"blank subject", CampaignJob{RecipientIDs: []int64{1}, Subject: "  ", Template: "t.html"}, "subject"},
		{"long subject", CampaignJob{RecipientIDs: []int64{1}, Subject: strings.Repeat("a", 201), Template: "t.html"}, "subject"},
		{"no template", CampaignJob{RecipientIDs: []int64{1}, Subject: "s"}, "email"},
		{"long header", CampaignJob{RecipientIDs: []int64{1}, Subject: "s", Template: "t.html",
			Custom: &CustomContent{Header: strings.Repeat("h", 201), Text: "t"}}, "header"},
		{"long text", CampaignJob{RecipientIDs: []int64{1}, Subject: "s", Template: "t.html",
			Custom: &CustomContent{Header: "h", Text: strings.Repeat("x", 1001)}}, "texto"},
		{"blank header", CampaignJob{RecipientIDs: []int64{1}, Subject: "s", Template: "t.html",
			Custom: &CustomContent{Header: " ", Text: "t"}}, "header"},
		{"blank text", CampaignJob{RecipientIDs: []int64{1}, Subject: "s", Template: "t.html",
			Custom: &CustomContent{Header: "h"}}, "texto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.job.Validate()
			if _, ok := errs[tt.field]; !ok {
				t.Errorf("expected error on %q, got %v", tt.field, errs)
			}
		})
	}
}

func TestCampaignJobValidateCustom(t *testing.T) {
	job := CampaignJob{RecipientIDs: []int64{1}, Subject: "s", Template: "t.html",
		Custom: &CustomContent{Header: "Oferta", Text: "Só hoje"}}
	if errs := job.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid custom job, got %v", errs)
	}

	job.Custom = &CustomContent{}
	errs := job.Validate()
	if errs["header"] != "required" || errs["texto"] != "required" {
		t.Errorf("expected header and texto required, got %v", errs)
	}
}

func TestCampaignJobSubjectCountsRunes(t *testing.T) {
	job := CampaignJob{RecipientIDs: []int64{1}, Subject: strings.Repeat("ç", 200), Template: "t.html"}
	if errs := job.Validate(); len(errs) != 0 {
		t.Fatalf("200 multibyte characters should be accepted, got %v", errs)
	}
}

func TestSendResultAccepted(t *testing.T) {
	tests := []struct {
		name string
		r    *SendResult
		want bool
	}{
		{"nil", nil, false},
		{"success", &SendResult{HTTPStatus: 200, ProviderStatus: "success"}, true},
		{"200 with error status", &SendResult{HTTPStatus: 200, ProviderStatus: "error"}, false},
		{"500 claiming success", &SendResult{HTTPStatus: 500, ProviderStatus: "success"}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Accepted(); got != tt.want {
			t.Errorf("%s: Accepted() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
