// Package testutil provides shared test helpers for vaults, databases and
// artifact fixtures.
package testutil

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/starford/linkshot/internal/artifact"
	"github.com/starford/linkshot/internal/canvas"
	"github.com/starford/linkshot/internal/index"
	"github.com/starford/linkshot/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "linkshot-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// MemArtifacts returns an artifact store on an in-memory filesystem.
func MemArtifacts(t *testing.T) *artifact.Store {
	t.Helper()
	return artifact.New(memfs.New(), "cache")
}

// WriteCanvas stores a canvas document made of nodes at path.
func WriteCanvas(t *testing.T, store storage.Provider, path string, nodes ...canvas.Node) {
	t.Helper()
	data, err := json.Marshal(canvas.Document{Nodes: nodes})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Write(path, data); err != nil {
		t.Fatal(err)
	}
}

// LinkNode builds a web-link canvas node.
func LinkNode(id, url string) canvas.Node {
	return canvas.Node{ID: id, Type: canvas.TypeLink, URL: url, Width: 400, Height: 300}
}

// Image returns a solid w×h image.
func Image(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 200, A: 255})
		}
	}
	return img
}

// JPEG returns the JPEG encoding of a solid w×h image.
func JPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Image(w, h), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
