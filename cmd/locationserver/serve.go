package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/checkpoint"
	"github.com/marmos91/locationd/pkg/config"
	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/server"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// Legacy arguments are best effort: each bad one is logged and skipped.
	config.ApplyLegacyArgs(cfg, args)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	configureLogging(cfg.Logging)
	defer func() { _ = logger.CloseFileSink() }()

	if configFile != "" {
		logger.Info("Configuration loaded from %s", configFile)
	} else if config.ConfigExists() {
		logger.Info("Configuration loaded from %s", config.GetDefaultConfigPath())
	} else {
		logger.Info("No configuration file found, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsResult := config.InitializeMetrics(cfg)

	store := directory.NewStore()

	var writer *checkpoint.Writer
	backend, err := config.CreateCheckpointBackend(ctx, &cfg.Checkpoint)
	if err != nil {
		// Running without persistence beats not running at all.
		logger.Error("Checkpointing disabled: %v", err)
		backend = nil
	}
	if backend != nil {
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Error("Error closing %s checkpoint backend: %v", backend.Name(), err)
			}
		}()

		n, err := checkpoint.Restore(ctx, backend, store)
		if err != nil {
			return fmt.Errorf("failed to restore directory from %s checkpoint: %w", backend.Name(), err)
		}
		logger.Info("Loaded %d entries from %s checkpoint", n, backend.Name())

		writer = checkpoint.NewWriter(store, backend, cfg.Checkpoint.Interval, metricsResult.LocationMetrics)
	}

	srv := server.New(store, writer)
	srv.SetShutdownTimeout(cfg.Server.ShutdownTimeout)
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.LocationMetrics)
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error: %v", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// configureLogging applies the logging section. A log file that cannot be
// opened leaves console logging in place.
func configureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch {
	case cfg.Output == "stderr":
		logger.SetOutput(os.Stderr)
	case cfg.IsFile():
		if err := logger.EnableFileSink(cfg.Output); err != nil {
			logger.Error("File logging disabled: %v", err)
		}
	}
}
