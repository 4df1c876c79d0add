// Command ingestd runs the meeting-recording ingestion service: it accepts
// WebSocket connections, records mixed and per-participant audio to disk,
// archives finished sessions, and runs the post-archive transcription and
// summarisation pipeline over each archive.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowpbx-labs/ingestd/internal/acceptor"
	"github.com/flowpbx-labs/ingestd/internal/archive"
	"github.com/flowpbx-labs/ingestd/internal/config"
	"github.com/flowpbx-labs/ingestd/internal/pipeline"
	"github.com/flowpbx-labs/ingestd/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting ingestd",
		"port", cfg.Port,
		"recordings_root", cfg.RecordingsRoot,
		"enable_mixed_audio", cfg.EnableMixedAudio,
		"enable_per_participant_audio", cfg.EnablePerParticipantAudio,
		"summarisation_provider", cfg.SummarisationProvider,
	)

	// Application context for background work (the post-archive pipeline).
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	pipelineCfg := pipeline.Config{
		Language:              cfg.SummarisationLanguage,
		SummarisationProvider: cfg.SummarisationProvider,
		TranscriptionAPIKey:   cfg.TranscriptionAPIKey,
		SummarisationAPIKey:   cfg.SummarisationAPIKey,
		Logger:                logger,
	}

	arc := archive.New(cfg.RecordingsRoot, logger, func(archiveDir string) {
		if err := pipeline.Run(appCtx, archiveDir, pipelineCfg); err != nil {
			slog.Error("post-archive pipeline failed", "archive_dir", archiveDir, "error", err)
		}
	})

	sessionCfg := session.Config{
		RecordingsRoot:            cfg.RecordingsRoot,
		EnableMixedAudio:          cfg.EnableMixedAudio,
		EnablePerParticipantAudio: cfg.EnablePerParticipantAudio,
		InactivityTimeout:         session.DefaultInactivityTimeout,
		Logger:                    logger,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	acc := acceptor.New(addr, sessionCfg, arc, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := acc.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("acceptor error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := acc.Shutdown(shutdownCtx); err != nil {
		slog.Error("acceptor shutdown error", "error", err)
	}

	slog.Info("ingestd stopped")
}
