// Package mcp exposes the guardian's operations as MCP tools over stdio,
// so agent frontends can scan, verify and query the protection state.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nkarpov/codesentry/internal/config"
	"github.com/nkarpov/codesentry/internal/guardian"
)

// Server wraps the MCP SDK server around one Guardian.
type Server struct {
	mcpServer *mcpsdk.Server
	guard     *guardian.Guardian
	cfg       *config.Config
}

// New creates an MCP server with all codesentry tools registered.
func New(guard *guardian.Guardian, cfg *config.Config) *Server {
	s := &Server{
		guard: guard,
		cfg:   cfg,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "codesentry",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all codesentry tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_scan",
		Description: "Scan a directory for protection markers and register every protected function and block found.",
	}, s.handleScan)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_protect",
		Description: "Manually register one function (by qualified name) or one line range of a file as protected.",
	}, s.handleProtect)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_check",
		Description: "Re-verify every protected entity in a file right now and report detected changes.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_graph",
		Description: "Build the call graph around a function from traced calls. Empty root returns the full graph.",
	}, s.handleGraph)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_errors",
		Description: "List recorded runtime errors, most recent first, optionally filtered by function.",
	}, s.handleErrors)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_changes",
		Description: "List recorded integrity changes, most recent first, optionally filtered by file and entity.",
	}, s.handleChanges)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_monitor",
		Description: "Start or stop background integrity monitoring and call tracing.",
	}, s.handleMonitor)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "codesentry_status",
		Description: "Report protection status: entity counts, monitoring state and database location.",
	}, s.handleStatus)
}
