// Proposald is the proposal workflow daemon.
//
// It runs the orchestrator with the five standard workers and exposes it
// through the operator HTTP API (with Prometheus /metrics), an optional
// tender inbox watcher and, with -mcp, an MCP server on stdio.
//
// Configuration is loaded from an optional YAML or TOML file and
// PROPOSALD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	proposald
//
//	# Use a config file and watch an inbox directory
//	PROPOSALD_INBOX_ENABLED=true PROPOSALD_INBOX_DIR=./inbox proposald -config proposald.yaml
//
//	# Serve MCP tools on stdio
//	proposald -mcp
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

	"github.com/fyrsmithlabs/proposald/internal/config"
	"github.com/fyrsmithlabs/proposald/internal/ingest"
	"github.com/fyrsmithlabs/proposald/internal/mcp"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("PROPOSALD_CONFIG"), "path to a YAML or TOML config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  proposald [-config file] [-mcp]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  proposald version                 Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *mcpMode); err != nil {
		log.Fatalf("proposald: %v", err)
	}
}

func printVersion() {
	fmt.Printf("proposald by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon and blocks until ctx is cancelled or a server fails.
func run(ctx context.Context, configPath string, mcpMode bool) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, mcpMode)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			a.logger.Error(shutdownCtx, "shutdown incomplete", zap.Error(err))
		}
	}()

	if cfg.Inbox.Enabled {
		inbox, err := ingest.NewInbox(cfg.Inbox.Dir, a.orch, a.logger)
		if err != nil {
			return err
		}
		if err := inbox.Start(ctx); err != nil {
			return err
		}
		defer inbox.Stop()
		go logInbox(ctx, a, inbox)
	}

	if mcpMode {
		srv, err := mcp.NewServer(&mcp.Config{Name: "proposald", Version: version, Logger: a.logger}, a.orch)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	}
	return serveHTTP(ctx, a)
}

func serveHTTP(ctx context.Context, a *app) error {
	srv, err := a.httpServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.logger.Info(ctx, "operator api ready",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", a.cfg.Server.Host, a.cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
	)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// logInbox reports the outcome of every document picked up by the inbox.
func logInbox(ctx context.Context, a *app, inbox *ingest.Inbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-inbox.Results():
			if !ok {
				return
			}
			if res.Err != nil {
				a.logger.Warn(ctx, "inbox document rejected", zap.String("path", res.Path), zap.Error(res.Err))
				continue
			}
			a.logger.Info(ctx, "inbox session started",
				zap.String("path", res.Path),
				zap.String("session_id", res.Session.ID),
				zap.String("state", string(res.Session.State)),
			)
		}
	}
}
