package mcp

import (
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/probe"
)

// MCPServer wraps the mcp-go server with the probe tools and resources. It
// lets an AI agent check a dashboard backend's schema and relationship
// metadata without a shell.
type MCPServer struct {
	prober  *probe.Prober
	sel     *datasource.Selection
	timeout time.Duration
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer creates an MCPServer with every probe tool and resource
// registered. sel may be nil when the backend was chosen explicitly.
// timeout bounds each check; zero means no bound.
func NewMCPServer(prober *probe.Prober, sel *datasource.Selection, timeout time.Duration, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		prober:  prober,
		sel:     sel,
		timeout: timeout,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"dashprobe",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// dashprobe as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. "127.0.0.1:8687").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// Every probe tool only reads from the backend.
func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:   boolPtr(true),
		IdempotentHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
