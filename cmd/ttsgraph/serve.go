package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/ttsgraph/internal/config"
	"github.com/nadzzz/ttsgraph/internal/dispatch"
	"github.com/nadzzz/ttsgraph/internal/health"
	"github.com/nadzzz/ttsgraph/internal/pipeline"
	"github.com/nadzzz/ttsgraph/internal/qwentts"
	"github.com/nadzzz/ttsgraph/internal/transport"
	grpctransport "github.com/nadzzz/ttsgraph/internal/transport/grpc"
	httptransport "github.com/nadzzz/ttsgraph/internal/transport/http"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the compiler daemon",
		Long: `Runs the compiler behind the enabled transports:

  http  POST /compile, GET /ws, GET /swagger/
  grpc  ttsgraph.v1.Compiler/Compile (JSON codec) and grpc.health.v1

A health server exposes /healthz and /readyz on server.health_port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), root.configFile)
		},
	}
}

func serve(ctx context.Context, configFile string) error {
	// Load configuration.
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("ttsgraph starting", "version", version, "model", cfg.Synthesis.Model)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize enabled transports.
	var transports []transport.Transport

	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port))
	}

	if len(transports) == 0 {
		return errors.New("no transports enabled: enable at least one in config")
	}

	// Create the dispatcher over the compiler steps.
	dispatcher := dispatch.New(pipeline.New(qwentts.Steps(cfg.QwenTTSOptions())))

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("ttsgraph ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	healthServer.SetReady(false)
	slog.Info("shutdown signal received, draining...")

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("ttsgraph stopped")
	return nil
}
