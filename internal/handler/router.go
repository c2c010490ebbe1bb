package handler

import (
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Routes is everything the router mounts.
type Routes struct {
	Events         *EventHandler
	Bookings       *BookingHandler
	Realtime       http.Handler
	Limiter        *RateLimiter
	Logger         *zap.Logger
	RequestTimeout time.Duration
	AllowedOrigins []string
	// TrustProxy takes the client address from forwarding headers, which
	// the rate limiter then keys on.
	TrustProxy     bool
}

// NewRouter builds the HTTP surface. The API is served both at the root and
// under /api.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	if rt.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(Logger(rt.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(rt.AllowedOrigins))

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	// Long-lived; no request timeout.
	r.Get("/ws", rt.Realtime.ServeHTTP)

	api := func(r chi.Router) {
		if rt.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(rt.RequestTimeout))
		}

		r.Route("/events", func(r chi.Router) {
			r.Get("/", rt.Events.ListEvents)
			r.Post("/", rt.Events.CreateEvent)
			r.Get("/{id}", rt.Events.GetEvent)
			r.Put("/{id}", rt.Events.UpdateEvent)
			r.Delete("/{id}", rt.Events.DeleteEvent)
			r.Get("/{id}/bookings", rt.Events.ListBookings)
		})
		r.With(rt.Limiter.Limit).Post("/bookings", rt.Bookings.CreateBooking)
	}

	r.Group(api)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthCheck)
		r.Get("/ws", rt.Realtime.ServeHTTP)
		r.Group(api)
	})

	return r
}
