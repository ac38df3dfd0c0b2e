package index

// LinkIndex is the catalog surface the service layer depends on.
type LinkIndex interface {
	UpsertCanvas(c CanvasRow, links []LinkRow) error
	DeleteCanvas(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	ListLinks(limit, offset int, query string) ([]LinkRow, int, error)
	LinksByKey(key string) ([]LinkRow, error)
	AllLinks() ([]LinkRow, error)
	Close() error
}

var _ LinkIndex = (*DB)(nil)
