package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/auth"
	"github.com/LeventeLantos/outreach-scheduler/internal/cache"
	"github.com/LeventeLantos/outreach-scheduler/internal/client"
	"github.com/LeventeLantos/outreach-scheduler/internal/logging"
	"github.com/LeventeLantos/outreach-scheduler/internal/model"
	"github.com/LeventeLantos/outreach-scheduler/internal/publish"
	"github.com/LeventeLantos/outreach-scheduler/internal/scheduler"
	"github.com/LeventeLantos/outreach-scheduler/internal/service"
)

type PlacementSweeper interface {
	Sweep(ctx context.Context, ownerID string) (*service.SweepSummary, error)
}

type CampaignSweeper interface {
	Sweep(ctx context.Context) (*service.CampaignSweepSummary, error)
}

type CampaignSender interface {
	Send(ctx context.Context, ownerID, campaignID, testEmail string) (*service.SendSummary, error)
}

type JobService interface {
	List(ctx context.Context, ownerID string, limit, offset int) ([]model.PublishJob, error)
	Receipt(ctx context.Context, ownerID, jobID string) (*cache.Receipt, error)
	Publish(ctx context.Context, ownerID, provider, text string) (*publish.Result, error)
}

type Scheduler interface {
	Start() bool
	Stop() bool
	IsRunning() bool
	Status() []scheduler.Status
}

type Deps struct {
	Sched     Scheduler
	Poller    PlacementSweeper
	Campaigns CampaignSweeper
	Sender    CampaignSender
	Jobs      JobService
	Logger    zerolog.Logger
}

type Handler struct {
	sched     Scheduler
	poller    PlacementSweeper
	campaigns CampaignSweeper
	sender    CampaignSender
	jobs      JobService
	validate  *validator.Validate
	log       zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		sched:     d.Sched,
		poller:    d.Poller,
		campaigns: d.Campaigns,
		sender:    d.Sender,
		jobs:      d.Jobs,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       logging.Component(d.Logger, "api"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) schedulerState() map[string]any {
	return map[string]any{"running": h.sched.IsRunning(), "schedulers": h.sched.Status()}
}

// RunScheduler sweeps the caller's due placements right away.
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerFromContext(r.Context())

	summary, err := h.poller.Sweep(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListPublishJobs(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerFromContext(r.Context())
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.jobs.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) PublishReceipt(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerFromContext(r.Context())

	receipt, err := h.jobs.Receipt(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type publishRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handler) PublishTwitter(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerFromContext(r.Context())

	var req publishRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.jobs.Publish(r.Context(), ownerID, publish.ProviderTwitter, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sendCampaignRequest struct {
	CampaignID string `json:"campaignId" validate:"required"`
	TestEmail  string `json:"testEmail" validate:"omitempty,email"`
}

func (h *Handler) SendCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerFromContext(r.Context())

	var req sendCampaignRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.sender.Send(r.Context(), ownerID, req.CampaignID, req.TestEmail)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ProcessScheduledCampaigns(w http.ResponseWriter, r *http.Request) {
	summary, err := h.campaigns.Sweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "invalid request body", err)
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.Validation(verrs[0].Field() + " is invalid: " + verrs[0].Tag())
		}
		return apperrors.Validation(err.Error())
	}
	return nil
}

// writeError maps err to the {error} envelope. Provider failures keep the
// provider's status code and body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status, body, ok := providerFailure(err); ok {
		writeJSON(w, status, map[string]string{"error": body})
		return
	}

	status := apperrors.HTTPStatus(err)
	msg := apperrors.Message(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("request_id", logging.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		if apperrors.KindOf(err) == apperrors.KindInternal {
			msg = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// providerFailure reports the upstream status and body of a failed provider
// call anywhere in err's chain.
func providerFailure(err error) (int, string, bool) {
	var status int
	var body string
	var perr *publish.ProviderError
	var serr *client.StatusError
	switch {
	case errors.As(err, &perr):
		status, body = perr.StatusCode, perr.Error()
	case errors.As(err, &serr):
		status, body = serr.StatusCode, serr.Body
		if body == "" {
			body = apperrors.Message(err)
		}
	default:
		return 0, "", false
	}
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return status, body, true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
