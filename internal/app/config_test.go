package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 3567, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "localhost", cfg.Webauthn.RPID)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Webauthn.Origins)
	require.Equal(t, 5*time.Minute, cfg.Webauthn.OptionsTTL)
	require.Equal(t, time.Hour, cfg.Recovery.TokenLifetime)
	require.Equal(t, 48, cfg.Recovery.TokenLength)
	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.TokenSchedule)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("KEYLOOM_SERVER_PORT", "4000")
	t.Setenv("KEYLOOM_RECOVERY_TOKEN_LIFETIME", "30m")
	t.Setenv("KEYLOOM_WEBAUTHN_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 4000, cfg.Server.Port)
	require.Equal(t, 30*time.Minute, cfg.Recovery.TokenLifetime)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Webauthn.Origins)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
server:
  port: 9090
recovery:
  token_length: 64
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 64, cfg.Recovery.TokenLength)
	// Untouched keys keep their defaults.
	require.Equal(t, time.Hour, cfg.Recovery.TokenLifetime)
}
