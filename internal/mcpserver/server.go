// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes linkshot tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/linkshot/internal/linkservice"
)

const cacheLayoutURI = "linkshot://cache-layout"

// Server wraps the MCP server with linkshot tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all linkshot tools registered.
func New(svc *linkservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"linkshot",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List web-link nodes across all canvases with their cache key and whether a preview is cached."),
		mcp.WithString("query", mcp.Description("Optional text matched against URL and label")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("get_preview",
		mcp.WithDescription("Describe the cached preview stored under a cache key: title, address, capture time and referencing canvases."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Cache key as returned by list_links")),
	), s.getPreview)

	s.mcp.AddTool(mcp.NewTool("delete_preview",
		mcp.WithDescription("Delete the cached thumbnail and metadata for a key. The next view loads the page live."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Cache key")),
	), s.deletePreview)

	s.mcp.AddTool(mcp.NewTool("cleanup_unused_previews",
		mcp.WithDescription("Remove every cached preview that no canvas node references any more."),
	), s.cleanup)

	s.mcp.AddTool(mcp.NewTool("warm_previews",
		mcp.WithDescription("Load and capture every link that has no cached preview yet."),
		mcp.WithBoolean("force", mcp.Description("Recapture links that are already cached")),
	), s.warm)

	s.mcp.AddTool(mcp.NewTool("get_cache_layout",
		mcp.WithDescription("Returns how cache keys are derived and which files a preview consists of."),
	), s.getCacheLayout)

	s.mcp.AddResource(
		mcp.NewResource(cacheLayoutURI, "Cache Layout",
			mcp.WithResourceDescription("Cache key policies and on-disk artifact layout."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCacheLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListLinks(ctx, req.GetInt("limit", 0), req.GetInt("offset", 0), req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"links": items, "total": total})
}

func (s *Server) getPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetPreview(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) deletePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeletePreview(ctx, key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted: " + key), nil
}

func (s *Server) cleanup(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Cleanup(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(rep.Message()), nil
}

func (s *Server) warm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Warm(ctx, req.GetBool("force", false))
	if errors.Is(err, linkservice.ErrWarmUnavailable) {
		return mcp.NewToolResultError("warming is not configured on this server"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) getCacheLayout(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CacheLayoutContract), nil
}

func (s *Server) readCacheLayoutResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      cacheLayoutURI,
			MIMEType: "text/markdown",
			Text:     CacheLayoutContract,
		},
	}, nil
}
