package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkshot/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/links", h.ListLinks)

	r.Route("/previews/{key}", func(r chi.Router) {
		r.Get("/", h.GetPreview)
		r.Delete("/", h.DeletePreview)
		r.Get("/thumbnail", h.Thumbnail)
	})

	r.Post("/cleanup", h.Cleanup)
	r.Post("/warm", h.Warm)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
