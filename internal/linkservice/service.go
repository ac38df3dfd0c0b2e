// Package linkservice coordinates the link index, the artifact store, the
// reconciler and the headless warmer for the API and MCP layers.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/linkshot/internal/apperr"
	"github.com/starford/linkshot/internal/artifact"
	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/index"
	"github.com/starford/linkshot/internal/lifecycle"
	"github.com/starford/linkshot/internal/reconcile"
	"github.com/starford/linkshot/internal/webframe"
)

// ErrWarmUnavailable is returned by Warm when no headless host is configured.
var ErrWarmUnavailable = errors.New("linkservice: warming is not configured")

// LinkItem is one indexed link with its cache state.
type LinkItem struct {
	Canvas string `json:"canvas"`
	NodeID string `json:"node_id"`
	URL    string `json:"url"`
	Key    string `json:"key"`
	Title  string `json:"title"`
	Cached bool   `json:"cached"`
}

// PreviewDetail describes the artifacts stored under one key.
type PreviewDetail struct {
	Key            string    `json:"key"`
	Title          string    `json:"title"`
	URL            string    `json:"url,omitempty"`
	CapturedAt     time.Time `json:"captured_at,omitzero"`
	Thumbnail      string    `json:"thumbnail"`
	ImageCached    bool      `json:"image_cached"`
	MetadataCached bool      `json:"metadata_cached"`
	Canvases       []string  `json:"canvases"`
}

// WarmReport summarizes a warm run.
type WarmReport struct {
	Attempted     int      `json:"attempted"`
	Captured      int      `json:"captured"`
	AlreadyCached int      `json:"already_cached"`
	Failed        []string `json:"failed"`
}

// Service is the application layer shared by the HTTP API and MCP server.
type Service struct {
	db         index.LinkIndex
	artifacts  *artifact.Store
	reconciler *reconcile.Reconciler
	ctrl       *lifecycle.Controller
	loader     *webframe.Loader
	logger     *slog.Logger
	onCleaned  func(removed []string)

	warmMu sync.Mutex

	capMu    sync.Mutex
	captured map[string]bool
}

// Option configures a Service.
type Option func(*Service)

// WithWarmer enables Warm through ctrl with headless nodes loaded by loader.
func WithWarmer(ctrl *lifecycle.Controller, loader *webframe.Loader) Option {
	return func(s *Service) {
		s.ctrl = ctrl
		s.loader = loader
	}
}

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithOnCleaned registers a hook run after each cleanup with the removed keys.
func WithOnCleaned(fn func(removed []string)) Option {
	return func(s *Service) { s.onCleaned = fn }
}

// NewService creates a new link service.
func NewService(db index.LinkIndex, artifacts *artifact.Store, reconciler *reconcile.Reconciler, opts ...Option) *Service {
	s := &Service{db: db, artifacts: artifacts, reconciler: reconciler, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListLinks returns a page of indexed links with their cache state.
func (s *Service) ListLinks(ctx context.Context, limit, offset int, query string) ([]LinkItem, int, error) {
	rows, total, err := s.db.ListLinks(limit, offset, query)
	if err != nil {
		return nil, 0, err
	}
	items := make([]LinkItem, len(rows))
	for i, r := range rows {
		items[i] = LinkItem{Canvas: r.Canvas, NodeID: r.NodeID, URL: r.URL, Key: r.Key, Title: r.Label}
		img, meta, err := s.artifacts.Exists(ctx, r.Key)
		if err != nil || !img || !meta {
			continue
		}
		items[i].Cached = true
		if md, err := s.artifacts.ReadMetadata(ctx, r.Key); err == nil && md.Title != "" {
			items[i].Title = md.Title
		}
	}
	return items, total, nil
}

// GetPreview describes what is cached under key. A key with neither
// artifact is apperr.ErrNotFound.
func (s *Service) GetPreview(ctx context.Context, key string) (*PreviewDetail, error) {
	if !cachekey.IsSafe(key) {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidKey, key)
	}
	img, meta, err := s.artifacts.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !img && !meta {
		return nil, fmt.Errorf("%w: preview %s", apperr.ErrNotFound, key)
	}
	d := &PreviewDetail{
		Key:         key,
		Thumbnail:   s.artifacts.ResourcePath(key),
		ImageCached: img,
		Canvases:    []string{},
	}
	if meta {
		md, err := s.artifacts.ReadMetadata(ctx, key)
		switch {
		case err == nil:
			d.MetadataCached = true
			d.Title, d.URL, d.CapturedAt = md.Title, md.URL, md.CapturedAt
		case errors.Is(err, apperr.ErrCorruptData):
			s.logger.Warn("linkservice: corrupt metadata", slog.String("key", key), slog.String("error", err.Error()))
		default:
			return nil, err
		}
	}
	rows, err := s.db.LinksByKey(key)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if !seen[r.Canvas] {
			seen[r.Canvas] = true
			d.Canvases = append(d.Canvases, r.Canvas)
		}
	}
	return d, nil
}

// Thumbnail returns the JPEG bytes stored under key.
func (s *Service) Thumbnail(ctx context.Context, key string) ([]byte, error) {
	return s.artifacts.ReadImage(ctx, key)
}

// DeletePreview removes both artifacts of key. Missing artifacts are fine.
func (s *Service) DeletePreview(ctx context.Context, key string) error {
	return s.artifacts.DeleteArtifacts(ctx, key)
}

// Cleanup runs a reconciliation sweep.
func (s *Service) Cleanup(ctx context.Context) (*reconcile.Report, error) {
	rep, err := s.reconciler.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info(rep.Message())
	if s.onCleaned != nil {
		s.onCleaned(rep.RemovedKeys)
	}
	return rep, nil
}

// Ready reports whether the cache directory is usable.
func (s *Service) Ready(ctx context.Context) error {
	return s.artifacts.Check(ctx)
}

// Warm captures every indexed link that has no complete artifact pair. With
// force, cached links are captured again. Only one warm runs at a time.
func (s *Service) Warm(ctx context.Context, force bool) (*WarmReport, error) {
	if s.ctrl == nil || s.loader == nil {
		return nil, ErrWarmUnavailable
	}
	s.warmMu.Lock()
	defer s.warmMu.Unlock()

	rows, err := s.db.AllLinks()
	if err != nil {
		return nil, err
	}
	rep := &WarmReport{Failed: []string{}}
	s.capMu.Lock()
	s.captured = make(map[string]bool)
	s.capMu.Unlock()
	defer func() {
		s.capMu.Lock()
		s.captured = nil
		s.capMu.Unlock()
	}()

	type target struct {
		node *webframe.Node
		key  string
	}
	seen := make(map[string]bool, len(rows))
	var targets []target
	for _, r := range rows {
		if seen[r.Key] {
			continue
		}
		seen[r.Key] = true

		img, meta, err := s.artifacts.Exists(ctx, r.Key)
		if err != nil {
			return nil, err
		}
		cached := img && meta
		if cached && !force {
			rep.AlreadyCached++
			continue
		}

		node := webframe.NewNode(ctx, r.Ref(), s.loader,
			webframe.WithFrameReady(func(n *webframe.Node) { s.ctrl.OnFrameReady(ctx, n) }),
			webframe.WithNodeLogger(s.logger))
		targets = append(targets, target{node: node, key: r.Key})
		if cached {
			node.RecreateFrame()
		} else {
			s.ctrl.OnInitialize(ctx, node)
		}
	}
	rep.Attempted = len(targets)

	// Armed frames hold the controller until they load and capture, or fail.
	s.ctrl.Wait()
	for _, t := range targets {
		t.node.WaitLoaded()
	}

	for _, t := range targets {
		if s.wasCaptured(t.key) {
			rep.Captured++
		} else {
			rep.Failed = append(rep.Failed, t.node.Ref().Address)
		}
		t.node.Destroy()
		s.ctrl.OnDestroy(t.node)
	}
	s.logger.Info("linkshot: warm finished",
		slog.Int("attempted", rep.Attempted),
		slog.Int("captured", rep.Captured),
		slog.Int("already_cached", rep.AlreadyCached))
	return rep, nil
}

// RecordCaptured notes a completed capture for the running warm. It is meant
// to be passed to capture.WithOnCaptured; outside a warm it does nothing.
func (s *Service) RecordCaptured(key, _ string) {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if s.captured != nil {
		s.captured[key] = true
	}
}

func (s *Service) wasCaptured(key string) bool {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.captured[key]
}
