package index

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/linkshot/internal/models"
)

// CanvasRow represents a row in the canvases table.
type CanvasRow struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// LinkRow is one web-link node of an indexed canvas.
type LinkRow struct {
	Canvas string
	NodeID string
	URL    string
	Key    string
	Label  string
}

// Ref returns the link reference the row was keyed from.
func (l LinkRow) Ref() models.LinkRef {
	return models.LinkRef{Address: l.URL, NodeID: l.NodeID}
}

// UpsertCanvas replaces a canvas and all of its link rows in one transaction.
func (db *DB) UpsertCanvas(c CanvasRow, links []LinkRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO canvases (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, c.Path, c.Checksum, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert canvas: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE canvas = ?`, c.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO links (canvas, node_id, url, cache_key, label)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(c.Path, l.NodeID, l.URL, l.Key, l.Label); err != nil {
				return fmt.Errorf("index: insert link %s: %w", l.NodeID, err)
			}
		}
	}
	if err := ftsReplace(tx, c.Path, links); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteCanvas removes a canvas and its links.
func (db *DB) DeleteCanvas(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM links WHERE canvas = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM canvases WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete canvas: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a canvas, or "" if it is not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM canvases WHERE path = ?`, path).Scan(&cs)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums maps every indexed canvas path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM canvases`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ListLinks returns a page of link rows ordered by canvas and node id, plus
// the total number of matches. An empty query matches everything.
func (db *DB) ListLinks(limit, offset int, query string) ([]LinkRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	where, args := matchClause(query)

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count links: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT canvas, node_id, url, cache_key, label FROM links`+where+`
		ORDER BY canvas, node_id
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list links: %w", err)
	}
	out, err := scanLinks(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// LinksByKey returns every link row carrying the given cache key.
func (db *DB) LinksByKey(key string) ([]LinkRow, error) {
	rows, err := db.conn.Query(`
		SELECT canvas, node_id, url, cache_key, label FROM links
		WHERE cache_key = ?
		ORDER BY canvas, node_id`, key)
	if err != nil {
		return nil, fmt.Errorf("index: links by key: %w", err)
	}
	return scanLinks(rows)
}

// AllLinks returns every indexed link row.
func (db *DB) AllLinks() ([]LinkRow, error) {
	rows, err := db.conn.Query(`
		SELECT canvas, node_id, url, cache_key, label FROM links
		ORDER BY canvas, node_id`)
	if err != nil {
		return nil, fmt.Errorf("index: all links: %w", err)
	}
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]LinkRow, error) {
	defer rows.Close()
	out := []LinkRow{}
	for rows.Next() {
		var l LinkRow
		if err := rows.Scan(&l.Canvas, &l.NodeID, &l.URL, &l.Key, &l.Label); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
