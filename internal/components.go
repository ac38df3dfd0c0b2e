package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/linkshot/internal/artifact"
	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/capture"
	"github.com/starford/linkshot/internal/index"
	"github.com/starford/linkshot/internal/lifecycle"
	"github.com/starford/linkshot/internal/linkservice"
	"github.com/starford/linkshot/internal/metrics"
	"github.com/starford/linkshot/internal/preview"
	"github.com/starford/linkshot/internal/reconcile"
	"github.com/starford/linkshot/internal/storage"
	"github.com/starford/linkshot/internal/webframe"
)

// eventSink receives cache events; the SSE broker in server mode.
type eventSink interface {
	PublishCaptured(key, title string)
	PublishCleaned(removed []string)
}

// components is the wired object graph shared by every command.
type components struct {
	logger    *slog.Logger
	store     *storage.FS
	db        *index.DB
	keys      cachekey.Deriver
	artifacts *artifact.Store
	metrics   *metrics.Provider
	ctrl      *lifecycle.Controller
	svc       *linkservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens storage and the index and wires the preview pipeline. sink may
// be nil.
func (a *application) build(ctx context.Context, logger *slog.Logger, sink eventSink) (*components, error) {
	cfg := a.config
	c := &components{logger: logger}

	keys, err := cachekey.New(cfg.Cache.KeyPolicy)
	if err != nil {
		return nil, err
	}
	c.keys = keys

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path, cacheWithinVault(cfg.Vault.Path, cfg.Cache.Dir)...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	c.store = store

	artifacts, err := artifact.Open(cfg.Cache.Dir, artifact.WithResourceBase(cfg.Cache.ResourceBase))
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if err := artifacts.EnsureRoot(ctx); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	c.artifacts = artifacts

	rec := metrics.Noop()
	if cfg.Metrics.Enabled {
		if c.metrics, err = metrics.NewPrometheus(); err != nil {
			return nil, err
		}
		if rec, err = c.metrics.Recorder(); err != nil {
			return nil, err
		}
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	c.db = db

	if err := index.Sync(db, store, keys, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	triggerOpts := []capture.Option{
		capture.WithSettleDelay(cfg.Cache.SettleDelay),
		capture.WithResizeDebounce(cfg.Cache.ResizeDebounce),
		capture.WithLogger(logger),
		capture.WithMetrics(rec),
	}
	svcOpts := []linkservice.Option{linkservice.WithLogger(logger)}
	if sink != nil {
		svcOpts = append(svcOpts, linkservice.WithOnCleaned(sink.PublishCleaned))
	}
	// c.svc is set below, before anything can load a frame.
	triggerOpts = append(triggerOpts, capture.WithOnCaptured(func(key, title string) {
		c.svc.RecordCaptured(key, title)
		if sink != nil {
			sink.PublishCaptured(key, title)
		}
	}))

	resolver := preview.NewResolver(artifacts, keys, rec, logger)
	trigger := capture.New(artifacts, keys, triggerOpts...)
	c.ctrl = lifecycle.NewController(resolver, trigger, logger)

	loader := webframe.NewLoader(
		webframe.WithClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		webframe.WithUserAgent(cfg.Fetch.UserAgent),
		webframe.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		webframe.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
		webframe.WithConcurrency(cfg.Fetch.Concurrency),
		webframe.WithMaxImagePixels(cfg.Fetch.MaxImagePixels),
		webframe.WithLoaderLogger(logger),
	)
	svcOpts = append(svcOpts, linkservice.WithWarmer(c.ctrl, loader))

	reconciler := reconcile.New(artifacts, store, keys, rec, logger)
	c.svc = linkservice.NewService(db, artifacts, reconciler, svcOpts...)
	return c, nil
}

// close waits for in-flight captures, then releases the index and the meter
// provider.
func (c *components) close(ctx context.Context) error {
	c.ctrl.Wait()
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.metrics != nil {
		errs = append(errs, c.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// cacheWithinVault returns the cache dir relative to the vault when it lives
// inside it, so document listing never descends into it.
func cacheWithinVault(vault, cache string) []string {
	va, err := filepath.Abs(vault)
	if err != nil {
		return nil
	}
	ca, err := filepath.Abs(cache)
	if err != nil {
		return nil
	}
	rel, err := filepath.Rel(va, ca)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return []string{filepath.ToSlash(rel)}
}
