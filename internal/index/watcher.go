package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/canvas"
	"github.com/starford/linkshot/internal/storage"
)

// Event kinds reported to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

const renameSettle = 200 * time.Millisecond

// watcher bundles the state shared by the event handlers.
type watcher struct {
	db     *DB
	store  storage.Provider
	keys   cachekey.Deriver
	root   string
	logger *slog.Logger
	cb     EventCallback
}

func (w *watcher) notify(kind, path string) {
	if w.cb != nil {
		w.cb(kind, path)
	}
}

// Watch starts an fsnotify watcher on the vault root and re-indexes canvas
// changes until ctx is cancelled. It calls cb (if non-nil) after each
// successful index mutation.
//
// Directories created at runtime are added to the watch list. Renames delete
// the old entry at once and schedule a reconciliation pass that picks up the
// new path and any stragglers.
func Watch(ctx context.Context, db *DB, store storage.Provider, keys cachekey.Deriver, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, vaultRoot); err != nil {
		return err
	}
	w := &watcher{db: db, store: store, keys: keys, root: vaultRoot, logger: logger, cb: cb}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var settle *time.Timer
	var settleC <-chan time.Time
	scheduleReconcile := func() {
		if settle == nil {
			settle = time.NewTimer(renameSettle)
			settleC = settle.C
			return
		}
		settle.Reset(renameSettle)
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleC:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if hidden(info.Name()) {
						continue
					}
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					w.indexDir(ev.Name)
					continue
				}
			}
			if !canvas.IsCanvas(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				w.index(rel, kind)

			case ev.Op&fsnotify.Remove != 0:
				w.remove(rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old path only; the new one arrives as a Create.
				w.remove(rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *watcher) index(rel, kind string) bool {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	if err := indexFile(w.db, w.keys, rel, data); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.notify(kind, rel)
	return true
}

func (w *watcher) remove(rel string) {
	if err := w.db.DeleteCanvas(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.notify(EventDeleted, rel)
}

// reconcile compares the index against the vault in one batch: entries with
// no file are removed, files that are new or changed are indexed.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("watcher: reconcile checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("watcher: reconcile list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.remove(p)
		}
	}
	for p, cs := range disk {
		if checksums[p] != cs {
			w.index(p, EventCreated)
		}
	}
}

// indexDir indexes canvases already present in a newly created directory.
func (w *watcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !canvas.IsCanvas(p) {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return nil
		}
		w.index(filepath.ToSlash(rel), EventCreated)
		return nil
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
