// Diagramd is a session-oriented service that turns natural language
// requirements into Mermaid diagrams through a staged pipeline: requirement
// and system analysis, diagram generation, quality evaluation with a bounded
// repair loop, and advisory passes.
//
// Configuration is loaded from ~/.config/diagramd/config.yaml and overridden
// by environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	diagramd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 LLM_API_KEY=sk-... diagramd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/advisor"
	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/config"
	"github.com/fyrsmithlabs/diagramd/internal/controller"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/generation"
	httpserver "github.com/fyrsmithlabs/diagramd/internal/http"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
	"github.com/fyrsmithlabs/diagramd/internal/services"
	"github.com/fyrsmithlabs/diagramd/internal/session"
	"github.com/fyrsmithlabs/diagramd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  diagramd           Start the diagramd daemon\n")
			fmt.Fprintf(os.Stderr, "  diagramd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("diagramd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the diagramd server and blocks until context cancellation.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the structured logger
//  3. Creates the completion client
//  4. Initializes the pipeline services and the session registry
//  5. Starts the expired-session sweeper
//  6. Starts the HTTP server
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	telemetryCfg := telemetry.NewDefaultConfig()
	telemetryCfg.Enabled = cfg.Observability.EnableTelemetry
	telemetryCfg.ServiceName = cfg.Observability.ServiceName
	tel, err := telemetry.New(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	logCfg := logging.NewDefaultConfig()
	logCfg.Output.OTEL = cfg.Observability.EnableTelemetry
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	zlog := logger.Underlying()

	zlog.Info("Starting diagramd",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout),
		zap.String("version", version))

	registry, err := initServices(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	zlog.Info("Services initialized",
		zap.Int("max_concurrent_sessions", cfg.Session.MaxConcurrent),
		zap.String("llm_model", cfg.LLM.Model))

	srv, err := httpserver.NewServer(registry.Executor(), zlog, &httpserver.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// Sweep expired sessions on a timer, through the registry finalize path
	go runSweeper(ctx, registry.Sessions(), cfg.Session.SweepInterval, zlog)

	zlog.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// runSweeper periodically finalizes timed out sessions.
func runSweeper(ctx context.Context, registry *session.Registry, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if swept := registry.SweepExpired(now); swept > 0 {
				logger.Info("expired sessions finalized", zap.Int("count", swept))
			}
		}
	}
}

// initServices builds the pipeline services and wires them into the registry.
func initServices(cfg *config.Config, logger *logging.Logger) (services.Registry, error) {
	zlog := logger.Underlying()

	client, err := llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		ReasonerModel:     cfg.LLM.ReasonerModel,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}

	sessions, err := session.NewRegistry(&session.Config{
		MaxConcurrent: cfg.Session.MaxConcurrent,
		Timeout:       cfg.Session.Timeout,
		MaxHistory:    cfg.Session.MaxHistory,
	}, zlog.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("session registry: %w", err)
	}

	requirements, err := analysis.NewRequirementAnalyzer(client, zlog.Named("analysis"))
	if err != nil {
		return nil, fmt.Errorf("requirement analyzer: %w", err)
	}
	system, err := analysis.NewSystemAnalyzer(client, zlog.Named("analysis"))
	if err != nil {
		return nil, fmt.Errorf("system analyzer: %w", err)
	}
	generator, err := generation.NewGenerator(client, diagram.NewValidator(), zlog.Named("generation"))
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	gate, err := quality.NewGate(&quality.Config{
		RepairThreshold: cfg.Quality.RepairThreshold,
	}, client, zlog.Named("quality"))
	if err != nil {
		return nil, fmt.Errorf("quality gate: %w", err)
	}
	adv, err := advisor.NewAdvisor(client, zlog.Named("advisor"))
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}

	executor, err := controller.NewExecutor(controller.Deps{
		Registry:     sessions,
		Requirements: requirements,
		System:       system,
		Generator:    generator,
		Gate:         gate,
		Advisor:      adv,
		Client:       client,
		Logger:       zlog.Named("controller"),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline executor: %w", err)
	}

	return services.NewRegistry(services.Options{
		Executor:     executor,
		Sessions:     sessions,
		Requirements: requirements,
		System:       system,
		Generator:    generator,
		Gate:         gate,
		Advisor:      adv,
		Client:       client,
	}), nil
}
