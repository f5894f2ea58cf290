/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestLogger: zap logging + Prometheus request metrics
  4. CORS:          Cross-origin requests for the frontend
  5. Authenticator: Decides the caller's capability once

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth, logging, metrics
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries the boundary configuration for the router.
type RouterConfig struct {
	AdminToken     string
	AllowedOrigins []string
	MetricsEnabled bool
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Identity-Ref", "X-Identity-Name"},
		AllowCredentials: true,
	}))
	r.Use(Authenticator(cfg.AdminToken))

	r.Route("/api", func(r chi.Router) {
		r.Route("/people", func(r chi.Router) {
			r.Get("/", h.ListPeople)
			r.Post("/", h.CreatePerson)
			r.Get("/{id}/transactions", h.GetTransactions)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
		})

		r.Route("/points", func(r chi.Router) {
			r.Post("/grant", h.Grant)
			r.Post("/redeem", h.Redeem)
		})

		// Self-service: the person comes from the caller's identity.
		r.Post("/store/redeem", h.SelfRedeem)
		r.Get("/me", h.Me)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
