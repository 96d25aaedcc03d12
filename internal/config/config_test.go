// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "localhost", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, time.Minute, cfg.Storage.SweepInterval)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	// WebAuthn defaults are filled in by validation.
	assert.Equal(t, 5*time.Minute, cfg.WebAuthn.ChallengeTTL)
	assert.Equal(t, "preferred", cfg.WebAuthn.UserVerification)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/passkeyd.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_FromYAML(t *testing.T) {
	content := `
server:
  host: 127.0.0.1
  port: 9090
webauthn:
  rp_id: example.com
  display_name: Example
  origins:
    - https://example.com
  user_verification: required
logging:
  level: debug
  format: json
ratelimit:
  enabled: true
  requests_per_min: 60
  burst: 10
storage:
  backend: memory
  sweep_interval: 30s
`
	path := filepath.Join(t.TempDir(), "passkeyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "example.com", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"https://example.com"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, "required", cfg.WebAuthn.UserVerification)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Storage.SweepInterval)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PASSKEYD_HOST", "10.0.0.5")
	t.Setenv("PASSKEYD_PORT", "9999")
	t.Setenv("RP_ID", "login.example.com")
	t.Setenv("ORIGIN", "https://login.example.com")
	t.Setenv("PASSKEYD_RP_NAME", "Example Login")
	t.Setenv("PASSKEYD_LOG_LEVEL", "warn")
	t.Setenv("PASSKEYD_LOG_FORMAT", "json")
	t.Setenv("PASSKEYD_STORAGE_BACKEND", "postgres")
	t.Setenv("PASSKEYD_DATABASE_DSN", "postgres://localhost/passkeyd")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "login.example.com", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"https://login.example.com"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, "Example Login", cfg.WebAuthn.RPDisplayName)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/passkeyd", cfg.Storage.DSN)
}

func TestLoad_InvalidPortEnvKeepsDefault(t *testing.T) {
	t.Setenv("PASSKEYD_PORT", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	t.Setenv("PASSKEYD_PORT", "70000")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(c *Config) {},
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid port",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "unknown storage backend",
			modify:  func(c *Config) { c.Storage.Backend = "redis" },
			wantErr: "invalid storage backend",
		},
		{
			name:    "postgres without dsn",
			modify:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: "storage dsn is required",
		},
		{
			name:    "non-positive sweep interval",
			modify:  func(c *Config) { c.Storage.SweepInterval = 0 },
			wantErr: "sweep_interval must be positive",
		},
		{
			name: "ratelimit enabled without rate",
			modify: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerMin = 0
			},
			wantErr: "requests_per_min must be positive",
		},
		{
			name: "metrics enabled without path",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Path = ""
			},
			wantErr: "metrics path is required",
		},
		{
			name:    "webauthn origin outside rp id",
			modify:  func(c *Config) { c.WebAuthn.RPOrigins = []string{"https://evil.test"} },
			wantErr: "webauthn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
