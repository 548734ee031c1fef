package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-smart-notifications/internal/config"
	"github.com/go-smart-notifications/internal/domain"
	"github.com/go-smart-notifications/internal/transport/http/handler"
	appmiddleware "github.com/go-smart-notifications/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.Verifier)

	// 5 triggers/second per user, burst of 20.
	triggerRL := appmiddleware.NewRateLimiter(rate.Limit(5), 20)

	healthH := handler.NewHealthHandler(deps.Checks)
	notifH := handler.NewNotificationHandler(deps.Inbox)
	triggerH := handler.NewTriggerHandler(deps.Generator, cfg.DedupWindowHours)
	flagH := handler.NewFlagHandler(deps.Flags)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/notifications", notifH.List)
			r.Put("/notifications/read-all", notifH.MarkAllRead)
			r.Get("/notifications/{id}", notifH.Get)
			r.Put("/notifications/{id}/read", notifH.MarkAsRead)
			r.Put("/notifications/{id}/dismiss", notifH.Dismiss)
			r.With(triggerRL.Limit).Post("/notifications/triggers", triggerH.Create)
			r.With(triggerRL.Limit).Post("/notifications/triggers/batch", triggerH.Batch)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/flags", flagH.List)
				r.Put("/flags/{name}", flagH.Update)
			})
		})
	})

	return r
}
