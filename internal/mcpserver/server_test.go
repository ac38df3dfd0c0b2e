package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/linkshot/internal/artifact"
	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/index"
	"github.com/starford/linkshot/internal/linkservice"
	"github.com/starford/linkshot/internal/models"
	"github.com/starford/linkshot/internal/reconcile"
	"github.com/starford/linkshot/internal/testutil"
)

func testServer(t *testing.T) (*Server, *artifact.Store) {
	t.Helper()

	_, vault := testutil.TestVault(t)
	db := testutil.TestDB(t)
	artifacts := testutil.MemArtifacts(t)
	ctx := context.Background()
	if err := artifacts.EnsureRoot(ctx); err != nil {
		t.Fatal(err)
	}

	testutil.WriteCanvas(t, vault, "board.canvas",
		testutil.LinkNode("n1", "https://example.com/one"),
		testutil.LinkNode("n2", "https://example.com/two"))
	if err := index.Sync(db, vault, cachekey.Identity{}, testutil.Logger()); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"n1", "stale"} {
		if err := artifacts.WriteMetadata(ctx, key, models.Metadata{Title: "Title " + key}); err != nil {
			t.Fatal(err)
		}
		if err := artifacts.WriteImage(ctx, key, testutil.JPEG(t, 4, 4)); err != nil {
			t.Fatal(err)
		}
	}

	rec := reconcile.New(artifacts, vault, cachekey.Identity{}, nil, testutil.Logger())
	svc := linkservice.NewService(db, artifacts, rec, linkservice.WithLogger(testutil.Logger()))
	return New(svc), artifacts
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_links":
		result, err = srv.listLinks(ctx, req)
	case "get_preview":
		result, err = srv.getPreview(ctx, req)
	case "delete_preview":
		result, err = srv.deletePreview(ctx, req)
	case "cleanup_unused_previews":
		result, err = srv.cleanup(ctx, req)
	case "warm_previews":
		result, err = srv.warm(ctx, req)
	case "get_cache_layout":
		result, err = srv.getCacheLayout(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListLinks(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_links", map[string]any{"limit": 10})
	var out struct {
		Links []linkservice.LinkItem `json:"links"`
		Total int                    `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 2 || len(out.Links) != 2 {
		t.Fatalf("out = %+v", out)
	}
	if !out.Links[0].Cached || out.Links[0].Title != "Title n1" {
		t.Errorf("links[0] = %+v", out.Links[0])
	}
}

func TestGetPreview(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_preview", map[string]any{"key": "n1"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var d linkservice.PreviewDetail
	_ = json.Unmarshal([]byte(resultText(r)), &d)
	if d.Title != "Title n1" || len(d.Canvases) != 1 {
		t.Errorf("detail = %+v", d)
	}

	r = callTool(t, srv, "get_preview", map[string]any{"key": "n2"})
	if !r.IsError {
		t.Error("expected error for uncached key")
	}
	r = callTool(t, srv, "get_preview", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing key argument")
	}
}

func TestDeletePreview(t *testing.T) {
	srv, artifacts := testServer(t)

	r := callTool(t, srv, "delete_preview", map[string]any{"key": "n1"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	img, meta, err := artifacts.Exists(context.Background(), "n1")
	if err != nil || img || meta {
		t.Errorf("exists after delete = %v %v %v", img, meta, err)
	}
	r = callTool(t, srv, "delete_preview", map[string]any{"key": "../x"})
	if !r.IsError {
		t.Error("expected error for unsafe key")
	}
}

func TestCleanupUnusedPreviews(t *testing.T) {
	srv, artifacts := testServer(t)

	r := callTool(t, srv, "cleanup_unused_previews", nil)
	if text := resultText(r); text != "1 unused thumbnails cleaned up" {
		t.Errorf("cleanup = %q", text)
	}
	keys, err := artifacts.Keys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "n1" {
		t.Errorf("keys = %v", keys)
	}
}

func TestWarmUnavailable(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "warm_previews", map[string]any{"force": true})
	if !r.IsError {
		t.Error("expected error without a headless host")
	}
}

func TestCacheLayout(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_cache_layout", nil)
	if !strings.Contains(resultText(r), "<key>.metadata.json") {
		t.Error("layout does not mention the metadata file")
	}

	contents, err := srv.readCacheLayoutResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != cacheLayoutURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
