package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Auth struct {
	Users   TokenVerifier
	Service KeyChecker
}

func Router(h *Handler, a Auth, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/v1/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(requireUser(a.Users))

		r.Post("/v1/scheduler/run", h.RunScheduler)
		r.Get("/v1/publish-jobs", h.ListPublishJobs)
		r.Get("/v1/publish-jobs/{id}/receipt", h.PublishReceipt)
		r.Post("/v1/publish/twitter", h.PublishTwitter)
		r.Post("/v1/email/campaigns/send", h.SendCampaign)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireService(a.Service))

		r.Get("/v1/scheduler/status", h.SchedulerStatus)
		r.Post("/v1/scheduler/start", h.SchedulerStart)
		r.Post("/v1/scheduler/stop", h.SchedulerStop)
		r.Post("/v1/email/process-scheduled", h.ProcessScheduledCampaigns)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("outreach-scheduler"))
	})

	return r
}
