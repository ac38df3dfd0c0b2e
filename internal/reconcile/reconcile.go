// Package reconcile removes artifact pairs no canvas references anymore.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/canvas"
	"github.com/starford/linkshot/internal/metrics"
	"github.com/starford/linkshot/internal/storage"
)

// Artifacts is the part of the artifact store a sweep needs.
type Artifacts interface {
	Keys(ctx context.Context) ([]string, error)
	DeleteArtifacts(ctx context.Context, key string) error
}

// Report summarizes one sweep.
type Report struct {
	Known       int      `json:"known"`
	Used        int      `json:"used"`
	Removed     int      `json:"removed"`
	RemovedKeys []string `json:"removed_keys"`
	Skipped     []string `json:"skipped"`
}

// Message is the user-facing summary line.
func (r *Report) Message() string {
	return fmt.Sprintf("%d unused thumbnails cleaned up", r.Removed)
}

// Reconciler sweeps the cache directory against the vault.
type Reconciler struct {
	artifacts Artifacts
	docs      storage.Provider
	keys      cachekey.Deriver
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// New creates a Reconciler. keys must be the deriver used for capture.
func New(artifacts Artifacts, docs storage.Provider, keys cachekey.Deriver, rec *metrics.Recorder, logger *slog.Logger) *Reconciler {
	if rec == nil {
		rec = metrics.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{artifacts: artifacts, docs: docs, keys: keys, metrics: rec, logger: logger}
}

// Run deletes every cached key that no canvas node maps to. Failing to list
// keys or documents aborts before anything is deleted; a document that cannot
// be read or parsed is skipped.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	known, err := r.artifacts.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list keys: %w", err)
	}
	metas, err := r.docs.List("")
	if err != nil {
		return nil, fmt.Errorf("reconcile: list documents: %w", err)
	}

	rep := &Report{Known: len(known), RemovedKeys: []string{}, Skipped: []string{}}
	used := make(map[string]struct{})
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.docs.Read(m.Path)
		if err != nil {
			r.logger.Warn("reconcile: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Skipped = append(rep.Skipped, m.Path)
			continue
		}
		doc, err := canvas.Parse(data)
		if err != nil {
			r.logger.Warn("reconcile: corrupt canvas", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Skipped = append(rep.Skipped, m.Path)
			continue
		}
		for _, ref := range doc.Refs() {
			used[r.keys.Key(ref)] = struct{}{}
		}
	}
	rep.Used = len(used)

	var unused []string
	for _, k := range known {
		if _, ok := used[k]; !ok {
			unused = append(unused, k)
		}
	}
	sort.Strings(unused)

	for _, k := range unused {
		if err := r.artifacts.DeleteArtifacts(ctx, k); err != nil {
			r.logger.Warn("reconcile: delete failed", slog.String("key", k), slog.String("error", err.Error()))
			continue
		}
		rep.RemovedKeys = append(rep.RemovedKeys, k)
	}
	rep.Removed = len(rep.RemovedKeys)
	r.metrics.Removed(ctx, rep.Removed)

	r.logger.Info("reconcile: done",
		slog.Int("known", rep.Known),
		slog.Int("used", rep.Used),
		slog.Int("removed", rep.Removed),
		slog.Int("skipped", len(rep.Skipped)))
	return rep, nil
}
