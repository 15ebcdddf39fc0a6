package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/matching"
	"github.com/dshills/tutormatch/internal/notify"
	"github.com/dshills/tutormatch/internal/refresher"
	"github.com/dshills/tutormatch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "tutormatch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	service   *matching.Service
	refresher *refresher.Refresher
	notifier  notify.Notifier
	log       *logger.Logger
}

// NewServer creates a new MCP server instance over an assembled service.
// A nil notifier logs notifications.
func NewServer(svc *matching.Service, ref *refresher.Refresher, notifier notify.Notifier, log *logger.Logger) (*Server, error) {
	if svc == nil || ref == nil {
		return nil, errors.New("mcp: service and refresher are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:       mcpServer,
		storage:   svc.Store(),
		service:   svc,
		refresher: ref,
		notifier:  notifier,
		log:       log.With("component", "mcp"),
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("serving MCP on stdio", "model", s.service.Model())
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(computeMatchesTool(), s.handleComputeMatches)
	s.mcp.AddTool(getMatchesTool(), s.handleGetMatches)
	s.mcp.AddTool(selectMatchTool(), s.handleSelectMatch)
	s.mcp.AddTool(refreshEmbeddingsTool(), s.handleRefreshEmbeddings)
	s.mcp.AddTool(backfillEmbeddingsTool(), s.handleBackfillEmbeddings)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
