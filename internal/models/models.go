// Package models defines the domain types for linkshot.
package models

import "time"

// LinkRef identifies a web-link node: the address it points to plus the
// node-local identifier from its owning canvas.
type LinkRef struct {
	Address string `json:"address"`
	NodeID  string `json:"node_id"`
}

// Metadata is the structured record stored next to a cached thumbnail.
type Metadata struct {
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitzero"`
}

// DocumentMetadata is a lightweight representation of a canvas document
// returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Size is a node's on-canvas dimensions.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether either dimension is unset.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// PreviewState is the display state of a link node.
type PreviewState int

const (
	StateCold PreviewState = iota
	StateLiveLoading
	StateShowingCachedPreview
	StateLiveLoaded
)

func (s PreviewState) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateLiveLoading:
		return "live_loading"
	case StateShowingCachedPreview:
		return "showing_cached_preview"
	case StateLiveLoaded:
		return "live_loaded"
	default:
		return "unknown"
	}
}
