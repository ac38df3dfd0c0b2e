package api

import (
	"github.com/starford/linkshot/internal/linkservice"
	"github.com/starford/linkshot/internal/reconcile"
)

// LinkItem is one indexed link (aliased from the domain layer).
type LinkItem = linkservice.LinkItem

// PreviewDetail describes a cached preview (aliased from the domain layer).
type PreviewDetail = linkservice.PreviewDetail

// WarmReport is the result of a warm run (aliased from the domain layer).
type WarmReport = linkservice.WarmReport

// LinkListResponse wraps paginated link listings.
type LinkListResponse struct {
	Links []LinkItem `json:"links" validate:"required"`
	Total int        `json:"total" example:"42" validate:"required"`
}

// CleanupResponse is returned by a cleanup sweep.
type CleanupResponse struct {
	Message     string   `json:"message" example:"3 unused thumbnails cleaned up" validate:"required"`
	Known       int      `json:"known" example:"10" validate:"required"`
	Used        int      `json:"used" example:"7" validate:"required"`
	Removed     int      `json:"removed" example:"3" validate:"required"`
	RemovedKeys []string `json:"removed_keys" validate:"required"`
	Skipped     []string `json:"skipped" validate:"required"`
}

func newCleanupResponse(r *reconcile.Report) CleanupResponse {
	return CleanupResponse{
		Message:     r.Message(),
		Known:       r.Known,
		Used:        r.Used,
		Removed:     r.Removed,
		RemovedKeys: r.RemovedKeys,
		Skipped:     r.Skipped,
	}
}
