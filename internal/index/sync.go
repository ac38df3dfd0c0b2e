package index

import (
	"log/slog"
	"time"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/canvas"
	"github.com/starford/linkshot/internal/checksum"
	"github.com/starford/linkshot/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed canvases are parsed and their links upserted
//   - canvases removed from disk are deleted from the index
//
// Corrupt canvases are logged and left out.
func Sync(db *DB, store storage.Provider, keys cachekey.Deriver, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, keys, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteCanvas(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	return nil
}

// indexFile parses a canvas and upserts its web-link nodes.
func indexFile(db *DB, keys cachekey.Deriver, path string, data []byte) error {
	doc, err := canvas.Parse(data)
	if err != nil {
		return err
	}
	nodes := doc.Links()
	links := make([]LinkRow, 0, len(nodes))
	for _, n := range nodes {
		links = append(links, LinkRow{
			Canvas: path,
			NodeID: n.ID,
			URL:    n.URL,
			Key:    keys.Key(n.Ref()),
			Label:  n.Label,
		})
	}
	row := CanvasRow{
		Path:      path,
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now().UTC(),
	}
	return db.UpsertCanvas(row, links)
}
