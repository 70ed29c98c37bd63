package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

const BasePath = "/api/scheduling"

type RouterConfig struct {
	Service  *scheduling.Service
	Tokens   *auth.Tokens
	Logger   zerolog.Logger
	Postgres Pinger // nil when running on memory storage
	Redis    Pinger // nil when locking in-process
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	h := NewHandlers(cfg.Service, cfg.Logger)
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)

	r.Route(BasePath, func(r chi.Router) {
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)

		r.Route("/booking", func(r chi.Router) {
			r.Get("/appointment-types", h.AppointmentTypes)
			r.Get("/available-slots", h.AvailableSlots)
			r.With(Authenticate(cfg.Tokens)).Post("/book", h.Book)
		})

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Tokens))
			r.Use(RequireStaff)

			r.Get("/appointments", h.ListAppointments)
			r.Post("/appointments", h.CreateAppointment)
			r.Get("/appointments/{id}", h.GetAppointment)
			r.Patch("/appointments/{id}", h.UpdateAppointmentNotes)
			r.Patch("/appointments/{id}/status", h.UpdateAppointmentStatus)
			r.Patch("/appointments/{id}/reschedule", h.RescheduleAppointment)

			r.Get("/waitlist", h.ListWaitlist)
			r.Post("/waitlist", h.CreateWaitlistEntry)
			r.Get("/waitlist/{id}", h.GetWaitlistEntry)
			r.Patch("/waitlist/{id}", h.UpdateWaitlistEntry)
			r.Get("/waitlist/{id}/matches", h.WaitlistMatches)
			r.Post("/waitlist/{id}/promote", h.PromoteWaitlistEntry)

			r.Get("/operatories", h.ListOperatories)
			r.Post("/operatories", h.CreateOperatory)
			r.Get("/operatories/{id}", h.GetOperatory)
			r.Patch("/operatories/{id}", h.UpdateOperatory)
		})
	})

	return r
}
