/**
 * @description
 * HTTP router setup for the billing service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers billing routes.
func NewRouter(h *Handler, jwksURL string, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Billing service is healthy"))
	})

	r.Route("/internal/billing", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/program/init", h.handleInitializeProgram)
		r.Post("/program/pause", h.handleSetPause)
		r.Post("/users", h.handleRegisterUserPayment)
		r.Post("/gateways", h.handleRegisterGateway)
		r.Post("/policies", h.handleCreatePolicy)
		r.Get("/users/{userPayment}/policies/{policyID}", h.handleGetPolicy)
		r.Post("/users/{userPayment}/policies/{policyID}/pause", h.handlePausePolicy)
		r.Post("/users/{userPayment}/policies/{policyID}/resume", h.handleResumePolicy)
		r.Post("/due/run", h.handleRunDueSweep)
	})

	r.Group(func(r chi.Router) {
		r.Use(GatewayAuthMiddleware(jwksURL))
		r.Post("/billing/users/{userPayment}/policies/{policyID}/settle", h.handleSettlePolicy)
	})

	return r
}
