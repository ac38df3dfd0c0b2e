package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkshot/internal/linkservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListLinks handles GET /api/links.
//
//	@Summary		List web-link nodes across all canvases
//	@Tags			links
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			q		query		string	false	"Match against URL and label"
//	@Success		200		{object}	LinkListResponse
//	@Security		BearerAuth
//	@Router			/links [get]
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListLinks(r.Context(), limit, offset, q.Get("q"))
	if err != nil {
		writeServiceError(w, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: items, Total: total})
}

// GetPreview handles GET /api/previews/{key}.
//
//	@Summary		Describe the cached preview for a key
//	@Tags			previews
//	@Produce		json
//	@Param			key	path		string	true	"Cache key"
//	@Success		200	{object}	PreviewDetail
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{key} [get]
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	d, err := h.svc.GetPreview(r.Context(), key)
	if err != nil {
		writeServiceError(w, "get preview", err, slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Thumbnail handles GET /api/previews/{key}/thumbnail.
//
//	@Summary		Fetch the cached thumbnail image
//	@Tags			previews
//	@Produce		image/jpeg
//	@Param			key	path	string	true	"Cache key"
//	@Success		200	{file}	binary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{key}/thumbnail [get]
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, err := h.svc.Thumbnail(r.Context(), key)
	if err != nil {
		writeServiceError(w, "thumbnail", err, slog.String("key", key))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeletePreview handles DELETE /api/previews/{key}.
//
//	@Summary		Delete the cached preview for a key
//	@Tags			previews
//	@Param			key	path	string	true	"Cache key"
//	@Success		204	"Preview deleted (or already absent)"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{key} [delete]
func (h *Handler) DeletePreview(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.svc.DeletePreview(r.Context(), key); err != nil {
		writeServiceError(w, "delete preview", err, slog.String("key", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup handles POST /api/cleanup.
//
//	@Summary		Remove cached previews no canvas references
//	@Tags			previews
//	@Produce		json
//	@Success		200	{object}	CleanupResponse
//	@Security		BearerAuth
//	@Router			/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Cleanup(r.Context())
	if err != nil {
		writeServiceError(w, "cleanup", err)
		return
	}
	writeJSON(w, http.StatusOK, newCleanupResponse(rep))
}

// Warm handles POST /api/warm.
//
//	@Summary		Capture previews for every uncached link
//	@Tags			previews
//	@Produce		json
//	@Param			force	query		bool	false	"Recapture cached links too"
//	@Success		200		{object}	WarmReport
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/warm [post]
func (h *Handler) Warm(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	rep, err := h.svc.Warm(r.Context(), force)
	if err != nil {
		writeServiceError(w, "warm", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
