package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carelink/booking-service/internal/booking"
	"github.com/carelink/booking-service/internal/payment"
)

type RouterConfig struct {
	Service *booking.Service
	Gateway payment.Gateway
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	validate := validator.New()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/doctors/{doctorID}/availability", availabilityHandler(cfg.Service))

	// Reservations
	r.Post("/reservations", createReservationHandler(cfg.Service, validate))
	r.Delete("/reservations/{id}", cancelReservationHandler(cfg.Service))
	r.Get("/reservations/{id}/remaining", remainingHandler(cfg.Service))
	r.Post("/reservations/{id}/complete", completeReservationHandler(cfg.Service, validate, cfg.Gateway))

	// Appointments
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service, validate))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, validate))

	return r
}
