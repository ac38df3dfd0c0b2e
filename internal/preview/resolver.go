// Package preview decides, per link node, whether to show a cached thumbnail
// or load the live frame.
package preview

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/metrics"
	"github.com/starford/linkshot/internal/models"
)

// Store is the subset of the artifact store the resolver reads from.
type Store interface {
	Exists(ctx context.Context, key string) (imageExists, metadataExists bool, err error)
	ReadMetadata(ctx context.Context, key string) (*models.Metadata, error)
	ReadImage(ctx context.Context, key string) ([]byte, error)
	ResourcePath(key string) string
}

// Resolver initializes link nodes from the artifact store.
type Resolver struct {
	store   Store
	keys    cachekey.Deriver
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil recorder disables metrics.
func NewResolver(store Store, keys cachekey.Deriver, rec *metrics.Recorder, logger *slog.Logger) *Resolver {
	if rec == nil {
		rec = metrics.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, keys: keys, metrics: rec, logger: logger}
}

// Resolve runs initialization for node and returns its session. Errors never
// surface: every failure degrades to a live load.
func (r *Resolver) Resolve(ctx context.Context, node Node) *Session {
	sess := r.Begin(node)
	r.Run(ctx, sess, node)
	return sess
}

// Begin returns a Cold session for node without touching the store.
func (r *Resolver) Begin(node Node) *Session {
	ref := node.Ref()
	return NewSession(ref, r.keys.Key(ref))
}

// Run drives a Cold session through initialization.
func (r *Resolver) Run(ctx context.Context, sess *Session, node Node) {
	log := r.logger.With(
		slog.String("key", sess.Key),
		slog.String("url", sess.Ref.Address),
		slog.String("session", sess.ID))

	imageOK, metaOK, err := r.store.Exists(ctx, sess.Key)
	if err != nil {
		log.Warn("preview: exists check failed", slog.String("error", err.Error()))
		r.live(ctx, sess, node)
		return
	}
	if !imageOK || !metaOK {
		log.Debug("preview: not cached", slog.Bool("image", imageOK), slog.Bool("metadata", metaOK))
		r.live(ctx, sess, node)
		return
	}

	node.SetKeepLoaded(false)

	meta, err := r.store.ReadMetadata(ctx, sess.Key)
	if err != nil {
		log.Debug("preview: metadata unusable", slog.String("error", err.Error()))
		node.SetKeepLoaded(true)
		r.live(ctx, sess, node)
		return
	}
	node.SetLabel(meta.Title)

	data, err := r.store.ReadImage(ctx, sess.Key)
	if err != nil {
		log.Warn("preview: image unreadable", slog.String("error", err.Error()))
		node.SetKeepLoaded(true)
		r.live(ctx, sess, node)
		return
	}

	p := &Preview{
		Key:   sess.Key,
		Src:   r.store.ResourcePath(sess.Key),
		Alt:   PreviewAlt,
		Class: PreviewClass,
		Title: meta.Title,
		Image: data,
	}
	cfg, decodeErr := jpeg.DecodeConfig(bytes.NewReader(data))
	if decodeErr == nil {
		p.Width, p.Height = cfg.Width, cfg.Height
	}

	revealCtx := context.WithoutCancel(ctx)
	p.reveal = func(reason string, err error) {
		r.reveal(revealCtx, sess, node, p, reason, err)
	}
	if err := sess.show(p); err != nil {
		log.Warn("preview: show", slog.String("error", err.Error()))
		return
	}
	node.ShowPreview(p)
	r.metrics.CacheHit(ctx)
	log.Debug("preview: showing cached thumbnail")

	if decodeErr != nil {
		p.Fail(decodeErr)
	}
}

func (r *Resolver) live(ctx context.Context, sess *Session, node Node) {
	if err := sess.Transition(models.StateLiveLoading); err != nil {
		r.logger.Warn("preview: live load", slog.String("key", sess.Key), slog.String("error", err.Error()))
		return
	}
	r.metrics.CacheMiss(ctx)
	node.RecreateFrame()
}

func (r *Resolver) reveal(ctx context.Context, sess *Session, node Node, p *Preview, reason string, cause error) {
	if err := sess.Transition(models.StateLiveLoading); err != nil {
		r.logger.Debug("preview: reveal ignored", slog.String("key", sess.Key), slog.String("error", err.Error()))
		return
	}
	attrs := []any{slog.String("key", sess.Key), slog.String("reason", reason)}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	r.logger.Debug("preview: revealing live frame", attrs...)

	node.SetKeepLoaded(true)
	node.RemovePreview(p)
	node.RecreateFrame()
	r.metrics.Reveal(ctx)
}
