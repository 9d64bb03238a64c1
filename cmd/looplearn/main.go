/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/looplearn/internal/config"
	"github.com/friendsincode/looplearn/internal/logbuffer"
	"github.com/friendsincode/looplearn/internal/logging"
	"github.com/friendsincode/looplearn/internal/server"
	"github.com/friendsincode/looplearn/internal/telemetry"
	"github.com/friendsincode/looplearn/internal/version"
)

var (
	logger     zerolog.Logger
	logBuf     = logbuffer.New(2000)
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "looplearn",
	Short:         "looplearn - loop practice editor for online video",
	Long:          "looplearn marks practice loops on a video, plays them singly or as a sequence, and keeps them in a library.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the looplearn server",
	Long:  "Start the HTTP control API, the playback scheduler and the selected player backend",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (overrides LOOPLEARN_CONFIG)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	if configPath != "" {
		if err := os.Setenv("LOOPLEARN_CONFIG", configPath); err != nil {
			return err
		}
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var fileWriter io.Writer
	if cfg.LogFile != "" {
		fileWriter = logging.NewFileWriter(logging.DefaultFileConfig(cfg.LogFile))
	}
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, fileWriter))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().
		Str("version", version.Version).
		Str("player", cfg.PlayerBackend).
		Str("library", cfg.LibraryBackend).
		Str("event_bus", cfg.EventBus).
		Msg("looplearn starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "looplearn",
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(timeoutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("looplearn stopped")
	return nil
}
