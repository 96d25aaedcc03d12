// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package cli

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passkeyd/passkeyd/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LoggingConfig
		level slog.Level
	}{
		{name: "debug", cfg: config.LoggingConfig{Level: "debug", Format: "text"}, level: slog.LevelDebug},
		{name: "info", cfg: config.LoggingConfig{Level: "info", Format: "json"}, level: slog.LevelInfo},
		{name: "warn", cfg: config.LoggingConfig{Level: "warn", Format: "text"}, level: slog.LevelWarn},
		{name: "error", cfg: config.LoggingConfig{Level: "error", Format: "json"}, level: slog.LevelError},
		{name: "unknown falls back to info", cfg: config.LoggingConfig{Level: "trace", Format: "text"}, level: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newLogger(tt.cfg)
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(t.Context(), tt.level))
			assert.False(t, logger.Enabled(t.Context(), tt.level-1))
		})
	}
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "passkeyd", rootCmd.Use)

	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
}
