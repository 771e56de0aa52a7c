// Package mcp exposes the engine operations as Model Context Protocol tools
// so agents can assess their own output and route it to a human.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server backed by the engine.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
	mcp    *server.MCPServer
}

// NewServer creates an MCP server exposing the engine tools.
func NewServer(e *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: e,
		logger: logger,
	}

	s.mcp = server.NewMCPServer(
		"hitl",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(assessUncertaintyTool, s.handleAssessUncertainty)
	s.mcp.AddTool(verifyWithEngagementTool, s.handleVerifyWithEngagement)
	s.mcp.AddTool(clarificationRespondTool, s.handleClarificationRespond)
	s.mcp.AddTool(clarificationStatusTool, s.handleClarificationStatus)
	s.mcp.AddTool(simulateEngagementTool, s.handleSimulateEngagement)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
