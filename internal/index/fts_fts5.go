//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS links_fts USING fts5(
			canvas UNINDEXED,
			node_id UNINDEXED,
			url,
			label,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReplace(tx *sql.Tx, canvas string, links []LinkRow) error {
	ftsDelete(tx, canvas)
	for _, l := range links {
		_, err := tx.Exec(`INSERT INTO links_fts (canvas, node_id, url, label) VALUES (?, ?, ?, ?)`,
			canvas, l.NodeID, l.URL, l.Label)
		if err != nil {
			return fmt.Errorf("index: upsert fts: %w", err)
		}
	}
	return nil
}

func ftsDelete(tx *sql.Tx, canvas string) {
	_, _ = tx.Exec(`DELETE FROM links_fts WHERE canvas = ?`, canvas)
}

// matchClause restricts links to FTS5 hits. The query is matched as one
// quoted phrase so user input never reaches the FTS query syntax.
func matchClause(query string) (string, []any) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	return ` WHERE (canvas, node_id) IN (SELECT canvas, node_id FROM links_fts WHERE links_fts MATCH ?)`,
		[]any{phrase}
}
