package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/lifeline/internal/api"
	"github.com/nugget/lifeline/internal/buildinfo"
	"github.com/nugget/lifeline/internal/config"
	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/lifecycle"
	"github.com/nugget/lifeline/internal/mqtt"
	"github.com/nugget/lifeline/internal/workflow"
)

// runServe handles the "lifeline serve" subcommand. One process answers
// every hook over HTTP, so concurrent pre-compaction events for the same
// directory share a single checkpoint.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The MQTT forwarder publishes offline and disconnects
//  3. The HTTP server drains in-flight requests and closes event streams
//  4. The database is closed via defer
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Lifeline", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure now that the desired level and format are known.
	logger = cfg.Logger(stdout)
	logger.Info("config loaded",
		"path", cfgPath,
		"data_dir", cfg.DataDir,
		"port", cfg.Listen.Port,
		"team", cfg.Features.Team,
	)

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("database opened", "path", cfg.DBPath())

	pruneCheckpoints(ctx, st, cfg, logger)

	bus := events.New()

	hooks := lifecycle.New(lifecycle.Config{
		Modes:       st.modes,
		Checkpoints: st.checkpoints,
		State:       workflow.NewProvider(cfg.Workflow.Dir),
		TeamEnabled: cfg.Features.Team,
		Bus:         bus,
		Logger:      logger,
	})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, hooks, logger.With("component", "api"))
	server.SetCheckpoints(st.checkpoints)
	server.SetModes(st.modes)
	server.SetEventBus(bus)

	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation reaches every component started below.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- MQTT forwarder ---
	var forwarder *mqtt.Forwarder
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		logger.Info("mqtt instance ID loaded", "instance_id", instanceID)

		forwarder = mqtt.New(cfg.MQTT, instanceID, bus, logger.With("component", "mqtt"))
		go func() {
			if err := forwarder.Start(ctx); err != nil {
				logger.Error("mqtt forwarder failed", "error", err)
			}
		}()
		logger.Info("mqtt forwarding enabled", "broker", cfg.MQTT.Broker, "topic_prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt forwarding disabled (not configured)")
	}

	// --- Graceful shutdown ---
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if forwarder != nil {
			if err := forwarder.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Lifeline stopped")
	return nil
}
