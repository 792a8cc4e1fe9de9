// Package mcp exposes the entity bank to MCP clients.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and serves the entity tools over the stdio transport, so a transaction-analysis
// pipeline can resolve and flag counterparties without going through the HTTP API.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

// Server bridges MCP tool calls to the entity bank service.
type Server struct {
	mcp     *mcp.Server
	service *entitybank.Service
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "counterpartyd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "counterpartyd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server around the entity bank service. The
// service lifecycle stays with the caller; Run only serves tool calls.
func NewServer(cfg *Config, service *entitybank.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if service == nil {
		return nil, fmt.Errorf("entity service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		service: service,
		metrics: NewMetrics(logger),
		logger:  logger,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until the
// context is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
