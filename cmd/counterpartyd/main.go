// Counterpartyd is the counterparty intelligence daemon for the
// transaction-analysis pipeline.
//
// It keeps a persistent bank of counterparty records across two tiers
// (per-project and global) and serves lookups, flags, and observation
// batches over HTTP or, with --mcp, over the MCP stdio transport.
//
// Configuration is loaded from a YAML file and environment variables.
// See internal/config for details.
//
// Usage:
//
//	# Start the HTTP daemon with defaults
//	counterpartyd
//
//	# Configure via file and environment
//	counterpartyd --config /etc/counterpartyd/config.yaml
//	SERVER_HTTP_PORT=9092 STORE_DIR=/var/lib/counterpartyd counterpartyd
//
//	# Serve MCP over stdio for an analysis agent
//	counterpartyd --mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/counterpartyd/internal/audit"
	"github.com/fyrsmithlabs/counterpartyd/internal/config"
	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
	"github.com/fyrsmithlabs/counterpartyd/internal/httpapi"
	"github.com/fyrsmithlabs/counterpartyd/internal/logging"
	"github.com/fyrsmithlabs/counterpartyd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath = flag.String("config", "", "path to config file")
	mcpMode    = flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  counterpartyd            Start the HTTP daemon\n")
			fmt.Fprintf(os.Stderr, "  counterpartyd --mcp      Serve MCP over stdio\n")
			fmt.Fprintf(os.Stderr, "  counterpartyd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("counterpartyd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is canceled.
func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		// The MCP stdio transport owns stdout.
		Stderr: *mcpMode,
		Fields: map[string]string{"service": cfg.Telemetry.ServiceName},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting counterpartyd",
		zap.String("version", version),
		zap.String("project_tier", cfg.Store.ProjectPath()),
		zap.String("global_tier", cfg.Store.GlobalFile),
		zap.Bool("mcp_mode", *mcpMode))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if *mcpMode {
		return runStdioServer(ctx, deps)
	}
	return runHTTPServer(ctx, cfg, deps)
}

// dependencies holds everything the daemon owns across both serving
// modes.
type dependencies struct {
	telemetry *telemetry.Telemetry
	trail     *audit.Trail
	service   *entitybank.Service
	watcher   *entitybank.Watcher
	logger    *zap.Logger
}

// Close releases resources in reverse initialization order. Telemetry
// shuts down last so spans from the teardown still flush.
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.service != nil {
		_ = d.service.Close()
	}
	if d.trail != nil {
		_ = d.trail.Close()
	}
	if d.telemetry != nil {
		_ = d.telemetry.Shutdown(context.Background())
	}
}

func closeTrail(trail *audit.Trail) {
	if trail != nil {
		_ = trail.Close()
	}
}

// initDependencies wires telemetry, the tier store, the audit trail,
// the entity service, and the optional global-tier watcher.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Insecure:       cfg.Telemetry.Insecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := entitybank.Open(cfg.Store.ProjectPath(), cfg.Store.GlobalFile, logger)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to open entity store: %w", err)
	}

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		trail, err = audit.NewTrail(cfg.Audit.File, logger)
		if err != nil {
			_ = tel.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to open audit trail: %w", err)
		}
		logger.Info("audit trail enabled", zap.String("file", cfg.Audit.File))
	}

	svc, err := entitybank.NewService(entitybank.Config{
		Store:    store,
		Audit:    trail,
		CacheTTL: cfg.Matcher.CacheTTL.Duration(),
		Logger:   logger,
	})
	if err != nil {
		closeTrail(trail)
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create entity service: %w", err)
	}

	var watcher *entitybank.Watcher
	if cfg.Store.WatchGlobal {
		watcher, err = entitybank.NewWatcher(svc, logger)
		if err != nil {
			_ = svc.Close()
			closeTrail(trail)
			_ = tel.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to create global tier watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			_ = svc.Close()
			closeTrail(trail)
			_ = tel.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to start global tier watcher: %w", err)
		}
	}

	return &dependencies{
		telemetry: tel,
		trail:     trail,
		service:   svc,
		watcher:   watcher,
		logger:    logger,
	}, nil
}

// runHTTPServer serves the HTTP API until the context is canceled.
func runHTTPServer(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	srv, err := httpapi.NewServer(deps.service, deps.logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.HTTPPort,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	deps.logger.Info("counterpartyd ready",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", cfg.Server.Addr())),
		zap.String("metrics_endpoint", "/metrics"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
