package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kosukekita/Clinic-Reservation/internal/booking"
)

type RouterConfig struct {
	Reservations *booking.Service
	Slots        *booking.SlotService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Everything else requires an identity from the fronting auth layer.
	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Get("/slots", listSlotsHandler(cfg.Slots))

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/slots", createSlotHandler(cfg.Slots))
			r.Put("/slots/{id}", updateSlotHandler(cfg.Slots))
			r.Delete("/slots/{id}", deleteSlotHandler(cfg.Slots))
			r.Get("/reservations/admin", listAllReservationsHandler(cfg.Reservations))
			r.Post("/reservations/token/{token}/confirm", confirmReservationHandler(cfg.Reservations))
		})

		r.Post("/reservations", createReservationHandler(cfg.Reservations))
		r.Get("/reservations", listMyReservationsHandler(cfg.Reservations))
		r.Get("/reservations/token/{token}", lookupReservationHandler(cfg.Reservations))
		r.Delete("/reservations/{id}", cancelReservationHandler(cfg.Reservations))
	})

	return r
}
