package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"notesdb/internal/service"
)

// Server is the MCP server for notesdb.
// It exposes view queries, rollups and settings mutations so AI agents can
// read and reshape database views.
type Server struct {
	mcp     *server.MCPServer
	views   *service.ViewService
	refresh *service.RefreshService
	log     zerolog.Logger
}

// Deps holds all dependencies passed from the command layer to the MCP server.
type Deps struct {
	Views   *service.ViewService
	Refresh *service.RefreshService
	Version string
	Log     zerolog.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		views:   deps.Views,
		refresh: deps.Refresh,
		log:     deps.Log.With().Str("component", "mcp").Logger(),
	}

	s.mcp = server.NewMCPServer(
		"notesdb-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerViewTools()
	s.registerRefreshTools()
	s.registerImportTool()
	s.registerResources()
	s.registerPrompts()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info().Msg("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// requireString reads a non-empty string argument.
func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func optionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolPtr(v bool) *bool { return &v }
