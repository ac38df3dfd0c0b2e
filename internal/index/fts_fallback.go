//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

// Without FTS5, search falls back to LIKE over the links table itself.
func initFTS(_ *sql.DB) error { return nil }

func ftsReplace(_ *sql.Tx, _ string, _ []LinkRow) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

func matchClause(query string) (string, []any) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	like := "%" + query + "%"
	return ` WHERE url LIKE ? OR label LIKE ?`, []any{like, like}
}
