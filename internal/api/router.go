/**
 * @description
 * HTTP router setup for the membership service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers membership routes.
func NewRouter(h *Handler, auth *Authenticator) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Membership service is healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/memberships/quote", h.handleQuote)
		r.Post("/memberships/apply", h.handleApply)
		r.Get("/memberships/me/latest", h.handleLatestApplication)
		r.Get("/memberships/me/current", h.handleCurrentMembership)
		r.Post("/memberships/{id}/withdraw", h.handleWithdraw)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(RequireAdmin)
		r.Get("/memberships", h.handleListApplications)
		r.Get("/memberships/{id}", h.handleGetApplication)
		r.Get("/memberships/{id}/attachments/{field}", h.handleDownloadAttachment)
		r.Post("/memberships/{id}/approve", h.handleApprove)
		r.Post("/memberships/{id}/reject", h.handleReject)
		r.Post("/memberships/{id}/review", h.handleReview)
		r.Post("/memberships/{id}/request-changes", h.handleRequestChanges)
		r.Get("/membership-types", h.handleListMembershipTypes)
		r.Put("/membership-types/{code}", h.handleUpdateMembershipType)
	})

	return r
}
