package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xcam-worker-go/internal/api"
	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/db"
	"xcam-worker-go/internal/logging"
	"xcam-worker-go/internal/repository"
	"xcam-worker-go/internal/services/actionqueue"
	"xcam-worker-go/internal/services/assembler"
	"xcam-worker-go/internal/services/capture"
	"xcam-worker-go/internal/services/discovery"
	"xcam-worker-go/internal/services/messaging"
	"xcam-worker-go/internal/services/session"
	"xcam-worker-go/internal/services/timelapse"
	"xcam-worker-go/internal/workspace"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Tee logs into the embedded web UI when enabled
	if cfg.LogdyEnabled {
		logdyWriter, url, err := logging.StartLogdy(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start Logdy UI")
		} else {
			log.Logger = log.Output(zerolog.MultiLevelWriter(
				zerolog.ConsoleWriter{Out: os.Stderr},
				logdyWriter,
			))
			log.Info().Str("url", url).Msg("Logdy UI available")
		}
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("workspace", cfg.WorkspaceRoot).
		Msg("Starting xcam worker")

	// Workspace layout
	store, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create workspace")
	}

	// Database and repositories
	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer conn.Close()

	actionRepo := repository.NewActionRepository(conn)
	cameraRepo := repository.NewCameraRepository(conn)

	// NATS is optional; without it events are dropped
	var publisher messaging.Publisher = messaging.NoopPublisher{}
	var broker *messaging.Service
	if cfg.NatsEnabled {
		broker, err = messaging.NewService(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		publisher = broker
	}

	// Domain services
	capturer := capture.NewService(cfg)
	frames := session.NewService(cfg, store.FramesDir(), store.BackupsDir())
	videoAssembler := assembler.NewService(cfg, frames, store, assembler.NewFFmpegEncoder(cfg))
	scheduler := timelapse.NewScheduler(cfg, store, capturer, frames, videoAssembler, publisher)
	finder := discovery.NewService(cfg, store)
	queue := actionqueue.NewService(cfg, actionRepo, cameraRepo, finder, capturer, publisher, store.FramesDir())

	// API server
	server := api.NewServer(cfg, store, cameraRepo, actionRepo)
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup API server")
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server forced to shutdown")
	}

	// The scheduler finalizes an active recording on its way out
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("Workers shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Workers did not stop within the shutdown timeout")
	}

	if broker != nil {
		if err := broker.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown NATS connection")
		}
	}
}
