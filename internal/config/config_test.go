package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "127.0.0.1"

apollo:
  api_key: "test-key"
  timeout_seconds: 45

outbound:
  send_cap_daily: 40

autopilot:
  followup_1_days: 3
  stop_bounce_pct: 10
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "test-key", cfg.Apollo.APIKey)
	assert.Equal(t, 45, cfg.Apollo.TimeoutSeconds)

	// Explicit values win, everything else falls back to defaults.
	assert.Equal(t, 40, cfg.Outbound.SendCapDaily)
	assert.Equal(t, 80, cfg.Outbound.EnrichCapDaily)
	assert.Equal(t, 3, cfg.Autopilot.Followup1Days)
	assert.Equal(t, 5, cfg.Autopilot.Followup2Days)
	assert.Equal(t, float64(10), cfg.Autopilot.StopBouncePct)
	assert.Equal(t, float64(3), cfg.Autopilot.StopOptOutPct)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Outbound.SendCapDaily)
	assert.Equal(t, 40, cfg.Outbound.EnrichCapDaily)
	assert.Equal(t, 14, cfg.Deliverability.WarmupDays)
	assert.Equal(t, 5, cfg.Deliverability.SendCapMin)
	assert.Equal(t, 0.5, cfg.Deliverability.CapDownFactor)
	assert.Equal(t, 50, cfg.Reputation.GlobalPerRun)
	assert.Equal(t, 15, cfg.Reputation.PerClientPerRun)
	assert.Equal(t, 600, cfg.LLM.MaxReplyChars)
	assert.Equal(t, 50, cfg.Reviews.PageSize)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644))

	t.Setenv("OPS_TOKEN", "sekrit")
	t.Setenv("SEND_CAP_DAILY", "25")
	t.Setenv("APOLLO_API_KEY", "env-key")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "sekrit", cfg.Server.OpsToken)
	assert.Equal(t, 25, cfg.Outbound.SendCapDaily)
	assert.Equal(t, "env-key", cfg.Apollo.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
