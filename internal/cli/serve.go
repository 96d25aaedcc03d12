// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/passkeyd/passkeyd/internal/config"
	"github.com/passkeyd/passkeyd/internal/rest"
)

// serveCmd runs the HTTP server until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebAuthn Relying Party server",
	Long: `Start the HTTP server with the configured credential store and serve
the registration and authentication ceremony endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if env := os.Getenv("PASSKEYD_CONFIG"); env != "" && path == "" {
			path = env
		}

		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger := newLogger(cfg.Logging)
		slog.SetDefault(logger)

		server, err := rest.NewServer(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		errChan := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errChan <- err
			}
		}()

		shutdownCtx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case <-shutdownCtx.Done():
			logger.Info("shutdown signal received")
		case err := <-errChan:
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Stop(ctx)
	},
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
