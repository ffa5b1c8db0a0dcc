package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dagolovach/ise-session-manager/internal/collector"
	"github.com/dagolovach/ise-session-manager/internal/config"
	"github.com/dagolovach/ise-session-manager/internal/events"
	"github.com/dagolovach/ise-session-manager/internal/inventory"
	"github.com/dagolovach/ise-session-manager/internal/ise"
	"github.com/dagolovach/ise-session-manager/internal/macvendor"
	"github.com/dagolovach/ise-session-manager/internal/metrics"
	"github.com/dagolovach/ise-session-manager/internal/snapshot"
	"github.com/dagolovach/ise-session-manager/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting ISE Session Manager",
		"http_addr", cfg.HTTPAddr,
		"ise_base_url", cfg.ISEBaseURL,
		"snapshot_path", cfg.SnapshotPath,
		"devices_file", cfg.DevicesFile,
		"nats_enabled", cfg.NATSURL != "",
		"ui_auth_enabled", cfg.UIPassword != "")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prometheusMetrics := metrics.NewMetrics()

	vendors := macvendor.NewClient(cfg.VendorAPIURL, prometheusMetrics, logger)
	sessions := collector.New(cfg, vendors, prometheusMetrics, logger)
	directory := ise.NewClient(cfg.ISEBaseURL, cfg.ISEUsername, cfg.ISEPassword, logger)

	snapshots, err := snapshot.NewStore(cfg.SnapshotPath, logger)
	if err != nil {
		logger.Error("Failed to create snapshot store", "error", err)
		os.Exit(1)
	}

	devices := inventory.New(cfg.DevicesFile, logger)
	if err := devices.Load(); err != nil {
		logger.Error("Failed to load device inventory", "error", err)
		os.Exit(1)
	}
	if err := devices.Watch(ctx); err != nil {
		logger.Error("Failed to watch device inventory", "error", err)
		os.Exit(1)
	}

	// Result publishing is optional; without a NATS URL the publisher stays
	// nil and the web layer skips it.
	var publisher web.ResultPublisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		logger.Info("Connected to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
		publisher = events.NewPublisher(nc, cfg.NATSSubject, logger)
	}

	server, err := web.NewServer(cfg, sessions, directory, snapshots, devices, publisher, prometheusMetrics, logger)
	if err != nil {
		logger.Error("Failed to create web server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("ISE Session Manager started successfully")
	<-sigChan

	logger.Info("Shutting down ISE Session Manager...")

	// Cancel context to stop the inventory watcher
	cancel()

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("ISE Session Manager stopped")
}

// parseLogLevel maps the configured level name to a slog level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
