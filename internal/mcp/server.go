package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"datakit/internal/domain"
	"datakit/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the datakit toolbox.
// It exposes tools so AI agents can load files, preview sources, and manage sync jobs.
type Server struct {
	mcp *server.MCPServer

	// Services (injected from the CLI layer)
	sync     *service.SyncService
	datasets domain.DatasetStore
}

// Deps holds all dependencies passed from the CLI layer to the MCP server.
type Deps struct {
	Sync     *service.SyncService
	Datasets domain.DatasetStore
}

// New creates and configures a new MCP server with all tools.
func New(deps Deps) *Server {
	s := &Server{
		sync:     deps.Sync,
		datasets: deps.Datasets,
	}

	s.mcp = server.NewMCPServer(
		"datakit-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerFileTools()
	s.registerSyncTools()
	s.registerDatasetTools()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
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

func boolPtr(v bool) *bool { return &v }
