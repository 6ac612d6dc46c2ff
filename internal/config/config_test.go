package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
chain:
  validators:
    - "0x1234567890AbcdEF1234567890aBcdef12345678"
`))
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.mainnet.oasys.games", cfg.Chain.RPC)
	assert.Equal(t, "https://explorer.oasys.games/api", cfg.Chain.Explorer)
	assert.Equal(t, "0x0000000000000000000000000000000000001000", cfg.Chain.StakingContract)
	assert.Equal(t, 24, cfg.Thresholds.MinBlocksPer24h)
	assert.Equal(t, 30, cfg.Thresholds.MaxBlockDelayMinutes)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.CheckIntervalDuration())
	assert.Equal(t, 9, cfg.Schedule.DailySummary.Hour)
	assert.Equal(t, 10, cfg.Advanced.SampleBlocks)
	assert.Equal(t, "oasys", cfg.Advanced.Prometheus.MetricsPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestPipeline_IsDetachedCopy(t *testing.T) {
	cfg, err := Parse([]byte(`
thresholds:
  min_blocks_per_24h: 48
  max_block_delay_minutes: 10
`))
	require.NoError(t, err)

	p := cfg.Pipeline()
	assert.Equal(t, 48, p.MinBlocksPer24h)
	assert.Equal(t, 10*time.Minute, p.MaxBlockDelay)
	assert.Equal(t, 10*time.Second, p.RPCTimeout)

	cfg.Thresholds.MinBlocksPer24h = 1
	assert.Equal(t, 48, p.MinBlocksPer24h)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad interval",
			mutate:  func(c *Config) { c.Schedule.CheckInterval = "soon" },
			wantErr: "schedule.check_interval",
		},
		{
			name:    "bad hour",
			mutate:  func(c *Config) { c.Schedule.DailySummary.Hour = 24 },
			wantErr: "hour",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Schedule.DailySummary.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Thresholds.MaxBlockDelayMinutes = -1 },
			wantErr: "max_block_delay_minutes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
alerts:
  channels:
    slack:
      enabled: false
      webhook: "https://hooks.slack.com/file"
`), 0o644))

	t.Setenv("OWT_SLACK_WEBHOOK", "https://hooks.slack.com/env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Alerts.Channels.Slack.Enabled)
	assert.Equal(t, "https://hooks.slack.com/env", cfg.Alerts.Channels.Slack.Webhook)
}

func TestDailySummaryLocation(t *testing.T) {
	assert.Equal(t, time.UTC, DailySummaryConfig{}.Location())
	assert.Equal(t, time.UTC, DailySummaryConfig{Timezone: "nope/nope"}.Location())
	assert.Equal(t, "Asia/Tokyo", DailySummaryConfig{Timezone: "Asia/Tokyo"}.Location().String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
