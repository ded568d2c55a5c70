package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/urmzd/heos-bridge/pkg/device"
)

// Server exposes the bridge to MCP clients as tools
type Server struct {
	mcpServer  *server.MCPServer
	controller device.Controller
}

// NewServer creates a new MCP server for speaker control
func NewServer(controller device.Controller) *Server {
	s := &Server{controller: controller}

	s.mcpServer = server.NewMCPServer(
		"heos-bridge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying server, for transports other than stdio
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
