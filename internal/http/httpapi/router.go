package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"signals/internal/http/handlers"
	"signals/internal/ident"
	"signals/internal/middleware"
)

// NewRouter wires the ingestion pipeline in admission order: ephemeral client
// key derivation, rate limiting, then the handler. Validation and aggregation
// happen inside the handler once a request has been admitted.
func NewRouter(app *handlers.App, logger zerolog.Logger, deriver *ident.Deriver, limit int, window time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/signals", func(r chi.Router) {
		r.Get("/ingest", app.IngestContract)
		r.Get("/metrics/daily", app.MetricsDaily)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ClientKey(func(req *http.Request) string {
				return deriver.Token(req, time.Now())
			}))
			r.Use(middleware.RateLimit(limit, window, func(req *http.Request) string {
				return middleware.ClientKeyFromContext(req.Context())
			}))
			r.Post("/ingest", app.Ingest)
		})
	})

	return r
}
