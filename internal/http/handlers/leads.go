package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/insurance-leads-platform/internal/enrichment"
	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/internal/submission"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

const maxFormBytes = 64 << 10

// LeadSubmitter is the part of the submission service the HTTP layer uses.
type LeadSubmitter interface {
	Submit(ctx context.Context, form leads.RawFormInput, opts ...submission.Option) submission.Result
	TestConnectivity(ctx context.Context) submission.ConnectivityReport
}

// LeadsHandler accepts landing-page form posts.
type LeadsHandler struct {
	submitter LeadSubmitter
	logger    *logging.Logger
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(submitter LeadSubmitter, logger *logging.Logger) *LeadsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadsHandler{submitter: submitter, logger: logger}
}

// Submit handles POST /api/leads. The body may be JSON or a urlencoded form.
func (h *LeadsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	form, requireSubject, err := decodeForm(r)
	if err != nil {
		h.logger.Debug("lead form decode failed", "error", err)
		jsonError(w, "Não foi possível ler os dados do formulário.", http.StatusBadRequest)
		return
	}
	form.UserAgent = r.UserAgent()
	form.ClientIP = enrichment.ClientIPFromRequest(r)

	res := h.submitter.Submit(r.Context(), form, submission.WithRequireSubject(requireSubject))
	if !res.Success {
		h.logger.Warn("lead submission failed",
			"category", res.Category,
			"error", res.RawError,
			"email", leads.MaskEmail(form.Email),
		)
	}
	writeJSON(w, statusFor(res), res)
}

// Connectivity handles GET /api/leads/connectivity.
func (h *LeadsHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	report := h.submitter.TestConnectivity(r.Context())
	status := http.StatusOK
	if !report.Reachable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func statusFor(res submission.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Category {
	case submission.CategoryValidation:
		return http.StatusUnprocessableEntity
	case submission.CategoryRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

type formBody struct {
	leads.RawFormInput
	RequireSubject bool `json:"require_subject"`
}

func decodeForm(r *http.Request) (leads.RawFormInput, bool, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" || mediaType == "" {
		var body formBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return leads.RawFormInput{}, false, errors.New("empty body")
			}
			return leads.RawFormInput{}, false, err
		}
		return body.RawFormInput, body.RequireSubject, nil
	}

	if err := r.ParseForm(); err != nil {
		return leads.RawFormInput{}, false, err
	}
	v := r.PostForm
	form := leads.RawFormInput{
		Name:       v.Get("name"),
		Email:      v.Get("email"),
		Phone:      v.Get("phone"),
		Operator:   v.Get("operator"),
		Subject:    v.Get("subject"),
		Message:    v.Get("message"),
		SourcePage: v.Get("source_page"),
	}
	requireSubject, _ := strconv.ParseBool(strings.TrimSpace(v.Get("require_subject")))
	return form, requireSubject, nil
}
