package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/counterpartyd/internal/mcp"
)

// runStdioServer serves the entity tools over the MCP stdio transport.
// Unlike the HTTP mode it talks to the same in-process service, so a
// pipeline agent gets the identical store without a daemon round trip.
func runStdioServer(ctx context.Context, deps *dependencies) error {
	deps.logger.Info("starting counterpartyd in MCP stdio mode")

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "counterpartyd",
		Version: version,
		Logger:  deps.logger,
	}, deps.service)
	if err != nil {
		return fmt.Errorf("failed to create stdio server: %w", err)
	}

	// Startup notice goes to stderr; stdout carries the MCP protocol.
	fmt.Fprintf(os.Stderr, "counterpartyd stdio mode started (version %s)\n", version)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server error: %w", err)
	}

	deps.logger.Info("stdio MCP server shutdown complete")
	return nil
}
