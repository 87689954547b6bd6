package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/rateLimit"
)

type RouterConfig struct {
	Tenant      func(http.Handler) http.Handler
	RateLimiter *rateLimit.RateLimiter
	RatePerMin  int
	Idempotency IdempotencyStore
	// MaxBodyBytes caps request bodies; zero means 1 MiB.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 1 << 20

func SetupRouter(h *Handlers, logger observability.Logger, rc RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	maxBody := rc.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBody))
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(rc.Tenant)
		if rc.RateLimiter != nil {
			r.Use(RateLimitMiddleware(rc.RateLimiter, rc.RatePerMin))
		}
		if rc.Idempotency != nil {
			r.Use(IdempotencyMiddleware(rc.Idempotency))
		}

		r.Post("/v1/payments/callback", h.PaymentCallback)
		r.Post("/v1/events", h.CreateEvent)
		r.Route("/v1/events/{eventID}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Get("/floor-plan", h.GetFloorPlan)
			r.Post("/floor-plan/regenerate", h.RegenerateFloorPlan)
			r.Get("/seats", h.ListSeats)
			r.Post("/seats/{seatID}/block", h.BlockSeat)
			r.Post("/seats/{seatID}/unblock", h.UnblockSeat)
			r.Get("/ticket-classes", h.ListTicketClasses)
			r.Post("/ticket-classes", h.CreateTicketClass)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.PutSettings)
			r.Post("/holds", h.Reserve)
			r.Post("/seat-holds", h.ReserveSeats)
			r.Post("/holds/sweep", h.SweepHolds)
		})
		r.Route("/v1/holds/{holdID}", func(r chi.Router) {
			r.Get("/", h.GetHold)
			r.Post("/confirm", h.ConfirmHold)
			r.Post("/release", h.ReleaseHold)
		})
	})

	return r
}
