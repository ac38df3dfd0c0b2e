// Package canvas decodes JSON Canvas documents and extracts their nodes.
package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/linkshot/internal/apperr"
	"github.com/starford/linkshot/internal/models"
)

// Extension is the file suffix of canvas documents.
const Extension = ".canvas"

// Node types defined by JSON Canvas.
const (
	TypeText  = "text"
	TypeFile  = "file"
	TypeLink  = "link"
	TypeGroup = "group"
)

// Node is a single node record. Only the fields linkshot reads are decoded.
type Node struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	URL    string  `json:"url,omitempty"`
	File   string  `json:"file,omitempty"`
	Text   string  `json:"text,omitempty"`
	Label  string  `json:"label,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Edge connects two nodes.
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	ToNode   string `json:"toNode"`
}

// Document is a parsed canvas.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Parse decodes raw canvas bytes. An empty file is an empty document; anything
// that is not a JSON object fails with apperr.ErrCorruptData.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: canvas: %w", apperr.ErrCorruptData, err)
	}
	return &doc, nil
}

// Refs returns every node as a link reference, regardless of type.
func (d *Document) Refs() []models.LinkRef {
	out := make([]models.LinkRef, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		out = append(out, models.LinkRef{NodeID: n.ID, Address: n.URL})
	}
	return out
}

// Links returns only the web-link nodes.
func (d *Document) Links() []Node {
	var out []Node
	for _, n := range d.Nodes {
		if n.Type == TypeLink {
			out = append(out, n)
		}
	}
	return out
}

// Ref returns the link reference of n.
func (n Node) Ref() models.LinkRef {
	return models.LinkRef{NodeID: n.ID, Address: n.URL}
}

// IsCanvas reports whether path names a canvas document.
func IsCanvas(path string) bool {
	return strings.HasSuffix(path, Extension)
}
