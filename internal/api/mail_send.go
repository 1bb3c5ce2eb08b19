package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/mailtrack/internal/attachment"
	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/httputil"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

const maxUploadMemory = 10 << 20

type sendFormResponse struct {
	Templates      []string `json:"templates"`
	RecipientCount int      `json:"recipient_count"`
}

type enqueueResponse struct {
	JobID      string `json:"job_id"`
	Recipients int    `json:"recipients"`
	Status     string `json:"status"`
}

// HandleSendForm lists the standard templates.
//
//	GET /mail/send
func (h *Handlers) HandleSendForm(w http.ResponseWriter, r *http.Request) {
	h.sendForm(w, r, h.templates)
}

// HandleCustomSendForm lists the custom templates.
//
//	GET /mail/send-custom
func (h *Handlers) HandleCustomSendForm(w http.ResponseWriter, r *http.Request) {
	h.sendForm(w, r, h.customTemplates)
}

func (h *Handlers) sendForm(w http.ResponseWriter, r *http.Request, catalog TemplateCatalog) {
	ids, ok := h.selectedRecipients(w, r)
	if !ok {
		return
	}
	names, err := catalog.List()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.OK(w, sendFormResponse{Templates: names, RecipientCount: len(ids)})
}

// HandleSend queues a campaign to the selected recipients.
//
//	POST /mail/send
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.selectedRecipients(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "invalid form")
		return
	}

	job := &domain.CampaignJob{
		RecipientIDs: ids,
		Subject:      strings.TrimSpace(r.PostForm.Get("subject")),
		Template:     strings.TrimSpace(r.PostForm.Get("email")),
	}
	errs := job.Validate()
	checkTemplate(errs, h.templates, job.Template)
	if len(errs) > 0 {
		httputil.ValidationError(w, errs)
		return
	}
	h.enqueue(w, r, job)
}

// HandleSendCustom queues a personalised campaign with an uploaded image.
//
//	POST /mail/send-custom
func (h *Handlers) HandleSendCustom(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.selectedRecipients(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	job := &domain.CampaignJob{
		RecipientIDs: ids,
		Subject:      strings.TrimSpace(r.PostFormValue("subject")),
		Template:     strings.TrimSpace(r.PostFormValue("email")),
		Custom: &domain.CustomContent{
			Header: r.PostFormValue("header"),
			Text:   r.PostFormValue("texto"),
		},
	}
	errs := job.Validate()
	checkTemplate(errs, h.customTemplates, job.Template)

	file, fh, err := r.FormFile("image")
	if err != nil {
		errs["image"] = "required"
	}
	if len(errs) > 0 {
		if file != nil {
			file.Close()
		}
		httputil.ValidationError(w, errs)
		return
	}
	defer file.Close()

	img, err := h.images.Prepare(r.Context(), fh.Filename, file)
	switch {
	case errors.Is(err, attachment.ErrNotImage), errors.Is(err, attachment.ErrEmpty):
		httputil.ValidationError(w, map[string]string{"image": "upload a valid image"})
		return
	case errors.Is(err, attachment.ErrTooLarge):
		httputil.ValidationError(w, map[string]string{"image": "image is too large"})
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	job.Custom.Image = img

	h.enqueue(w, r, job)
}

func (h *Handlers) enqueue(w http.ResponseWriter, r *http.Request, job *domain.CampaignJob) {
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("api: campaign queued",
		"job_id", job.ID, "template", job.Template,
		"recipients", len(job.RecipientIDs), "custom", job.Custom != nil)
	httputil.Accepted(w, enqueueResponse{JobID: job.ID, Recipients: len(job.RecipientIDs), Status: "queued"})
}

// selectedRecipients returns the session's recipient ids, redirecting to the
// recipient admin when nothing is selected.
func (h *Handlers) selectedRecipients(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	sel, err := h.sessions.Selection(r)
	if err != nil {
		httputil.InternalError(w, err)
		return nil, false
	}
	if len(sel.RecipientIDs) == 0 {
		http.Redirect(w, r, h.adminRedirectURL, http.StatusSeeOther)
		return nil, false
	}
	return sel.RecipientIDs, true
}

func checkTemplate(errs map[string]string, catalog TemplateCatalog, name string) {
	if _, set := errs["email"]; set || name == "" {
		return
	}
	if !catalog.Has(name) {
		errs["email"] = "unknown template"
	}
}
