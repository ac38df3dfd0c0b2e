package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/storage"
)

const boardJSON = `{"nodes":[
	{"id":"n1","type":"link","url":"https://example.com","x":0,"y":0,"width":400,"height":300},
	{"id":"t1","type":"text","text":"hello","x":0,"y":400,"width":200,"height":100}
]}`

func TestSync_IndexesLinkNodesOnly(t *testing.T) {
	vault := t.TempDir()
	store, err := storage.NewFS(vault)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_ = os.WriteFile(filepath.Join(vault, "board.canvas"), []byte(boardJSON), 0o644)
	_ = os.WriteFile(filepath.Join(vault, "broken.canvas"), []byte("{nope"), 0o644)

	if err := Sync(db, store, cachekey.Identity{}, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	rows, err := db.AllLinks()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].NodeID != "n1" || rows[0].Key != "n1" {
		t.Fatalf("links = %+v", rows)
	}
	if cs, _ := db.GetChecksum("broken.canvas"); cs != "" {
		t.Error("corrupt canvas should not be indexed")
	}
}

func TestSync_ContentKeys(t *testing.T) {
	vault := t.TempDir()
	store, _ := storage.NewFS(vault)
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_ = os.WriteFile(filepath.Join(vault, "board.canvas"), []byte(boardJSON), 0o644)
	keys := cachekey.Content{}
	if err := Sync(db, store, keys, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	rows, _ := db.AllLinks()
	if len(rows) != 1 {
		t.Fatalf("links = %+v", rows)
	}
	if want := keys.Key(rows[0].Ref()); rows[0].Key != want {
		t.Errorf("key = %q, want %q", rows[0].Key, want)
	}
}

func TestSync_RemovesVanished(t *testing.T) {
	vault := t.TempDir()
	store, _ := storage.NewFS(vault)
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := filepath.Join(vault, "gone.canvas")
	_ = os.WriteFile(p, []byte(boardJSON), 0o644)
	_ = Sync(db, store, cachekey.Identity{}, logger)
	_ = os.Remove(p)
	_ = Sync(db, store, cachekey.Identity{}, logger)

	if cs, _ := db.GetChecksum("gone.canvas"); cs != "" {
		t.Error("removed canvas still indexed")
	}
	if rows, _ := db.AllLinks(); len(rows) != 0 {
		t.Errorf("links remain: %+v", rows)
	}
}

func TestSync_DanglingCanvasDoesNotAbort(t *testing.T) {
	vault := t.TempDir()
	store, _ := storage.NewFS(vault)
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_ = os.WriteFile(filepath.Join(vault, "board.canvas"), []byte(boardJSON), 0o644)
	if err := os.Symlink(filepath.Join(vault, "missing.canvas"), filepath.Join(vault, "dangling.canvas")); err != nil {
		t.Skipf("symlink: %v", err)
	}

	if err := Sync(db, store, cachekey.Identity{}, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	rows, _ := db.AllLinks()
	if len(rows) != 1 || rows[0].Canvas != "board.canvas" {
		t.Errorf("links = %+v", rows)
	}
}
