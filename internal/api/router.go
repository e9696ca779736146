package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the API routes. The upload endpoint sits behind the
// bearer token; webhook and interaction callbacks authenticate with their
// own shared-secret schemes and stay outside the token group.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/status", h.Status)
	r.Get("/jobs", h.Jobs)
	r.Get("/tasks", h.Tasks)

	r.Post("/webhooks/drive", h.DriveWebhook)
	r.Post("/slack/actions", h.SlackActions)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.Paths.APIToken))
		r.Post("/upload", h.Upload)
		r.Post("/jobs/{fileID}/retry", h.RetryJob)
	})

	return r
}
