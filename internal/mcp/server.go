package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/King-Chau/mozi/internal/tools"
)

// Server exposes the tool registry over the Model Context Protocol so
// external agent frontends can drive the scheduler.
type Server struct {
	mcp *server.MCPServer
}

// NewServer wraps every registered tool as an MCP tool.
func NewServer(name, version string, registry *tools.Registry) *Server {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	for _, t := range registry.All() {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			slog.Warn("mcp: skipping tool with bad schema", "tool", t.Name(), "error", err)
			continue
		}
		s.AddTool(
			mcpgo.NewToolWithRawSchema(t.Name(), t.Description(), schema),
			adaptTool(t),
		)
	}
	return &Server{mcp: s}
}

// ServeStdio runs the JSON-RPC loop over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	if err := server.ServeStdio(s.mcp); err != nil {
		return fmt.Errorf("mcp serve: %w", err)
	}
	return nil
}

func adaptTool(t tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		result := t.Execute(ctx, req.GetArguments())
		if result.IsError {
			return mcpgo.NewToolResultError(result.ForLLM), nil
		}
		return mcpgo.NewToolResultText(result.ForLLM), nil
	}
}
