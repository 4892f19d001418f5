package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/voxlay/whisperbridge/internal/assets"
	"github.com/voxlay/whisperbridge/internal/bridge"
	"github.com/voxlay/whisperbridge/internal/config"
	"github.com/voxlay/whisperbridge/internal/engine"
	"github.com/voxlay/whisperbridge/internal/events"
	"github.com/voxlay/whisperbridge/internal/history"
	"github.com/voxlay/whisperbridge/internal/models"
	"github.com/voxlay/whisperbridge/internal/server"
	"github.com/voxlay/whisperbridge/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting daemon",
		"listen_addr", cfg.ListenAddr,
		"health_addr", cfg.HealthAddr,
		"model_variant", cfg.ModelVariant,
		"engine_mode", cfg.EngineMode,
		"data_dir", cfg.DataDir,
	)

	recorder := telemetry.NewRecorder(logger)

	manager, err := models.NewManager(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to initialise model manager", "error", err)
		os.Exit(1)
	}

	manifest, err := models.DefaultManifest()
	if err != nil {
		logger.Error("failed to load embedded model manifest", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := manager.Watch(ctx); err != nil {
			logger.Warn("model watcher stopped", "error", err)
		}
	}()

	backend, err := engine.New(cfg.EngineMode, logger)
	if err != nil {
		logger.Error("failed to initialise engine backend", "error", err)
		os.Exit(1)
	}

	b := bridge.New(backend, logger, recorder)
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close bridge", "error", err)
		}
	}()

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Warn("transcript history unavailable", "path", cfg.History.Path, "error", err)
			store = nil
		}
	}
	defer store.Close()

	publisher := events.NewPublisher(events.Config{
		Enabled:     cfg.MQTT.Enabled,
		BrokerURL:   cfg.MQTT.BrokerURL,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err := publisher.Start(ctx); err != nil {
		logger.Warn("event publisher unavailable", "broker", cfg.MQTT.BrokerURL, "error", err)
	}

	srv := server.New(cfg, logger, server.Deps{
		Bridge:    b,
		Recorder:  recorder,
		Manager:   manager,
		Manifest:  manifest,
		History:   store,
		Publisher: publisher,
		Assets:    assets.Dir(filepath.Join(cfg.DataDir, "assets")),
	})

	healthSrv := server.NewHealthServer(logger)
	healthLis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Error("failed to bind health listener", "error", err)
		os.Exit(1)
	}
	defer healthLis.Close()

	go func() {
		if err := healthSrv.Serve(healthLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("health server terminated with error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested, stopping servers")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", "error", err)
		}
	}()

	healthSrv.SetServing(true)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server terminated with error", "error", err)
		os.Exit(1)
	}

	if snapshot := recorder.Snapshot(); snapshot.TotalContexts > 0 || snapshot.LegacyCalls > 0 {
		logger.Info("telemetry totals",
			"total_contexts", snapshot.TotalContexts,
			"total_transcriptions", snapshot.TotalTranscriptions,
			"failed_transcriptions", snapshot.FailedTranscriptions,
			"total_segments", snapshot.TotalSegments,
			"total_samples", snapshot.TotalSamples,
			"legacy_calls", snapshot.LegacyCalls,
			"invalid_handle_calls", snapshot.InvalidHandleCalls,
		)
	}

	logger.Info("daemon stopped")
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
