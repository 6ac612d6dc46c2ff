package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

var ErrNoValidators = errors.New("no validator addresses configured")

// ============================================================
// MAIN CONFIG
// ============================================================

type Config struct {
	Chain      ChainConfig      `yaml:"chain"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ============================================================
// CHAIN CONFIG
// ============================================================

type ChainConfig struct {
	Name            string   `yaml:"name"`
	RPC             string   `yaml:"rpc"`
	Explorer        string   `yaml:"explorer"`
	StakingContract string   `yaml:"staking_contract"`
	Validators      []string `yaml:"validators"`
}

// ============================================================
// THRESHOLDS / SCHEDULE
// ============================================================

type ThresholdsConfig struct {
	MinBlocksPer24h      int `yaml:"min_blocks_per_24h"`
	MaxBlockDelayMinutes int `yaml:"max_block_delay_minutes"`
}

type ScheduleConfig struct {
	CheckInterval string             `yaml:"check_interval"`
	DailySummary  DailySummaryConfig `yaml:"daily_summary"`
}

type DailySummaryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hour     int    `yaml:"hour"`
	Timezone string `yaml:"timezone"`
}

// ============================================================
// ALERTS CONFIG
// ============================================================

type AlertsConfig struct {
	SendSuccessNotifications bool          `yaml:"send_success_notifications"`
	Channels                 AlertChannels `yaml:"channels"`
}

type AlertChannels struct {
	Slack     SlackConfig     `yaml:"slack"`
	Discord   DiscordConfig   `yaml:"discord"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	PagerDuty PagerDutyConfig `yaml:"pagerduty"`
}

type SlackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
}

type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type PagerDutyConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// ============================================================
// ADVANCED CONFIG
// ============================================================

type AdvancedConfig struct {
	RPCTimeout        string           `yaml:"rpc_timeout"`
	ExplorerTimeout   string           `yaml:"explorer_timeout"`
	ExplorerRateLimit int              `yaml:"explorer_rate_limit"`
	SampleBlocks      int              `yaml:"sample_blocks"`
	DashboardPort     int              `yaml:"dashboard_port"`
	HideLogs          bool             `yaml:"hide_logs"`
	Prometheus        PrometheusConfig `yaml:"prometheus"`
}

type PrometheusConfig struct {
	MetricsPrefix string `yaml:"metrics_prefix"`
	Port          int    `yaml:"port"`
}

// ============================================================
// PIPELINE SETTINGS
// ============================================================

// PipelineSettings is the read-only view of the configuration that the
// resolution pipeline consumes. It is a value; callers get their own copy.
type PipelineSettings struct {
	RPC               string
	Explorer          string
	StakingContract   string
	MinBlocksPer24h   int
	MaxBlockDelay     time.Duration
	SampleBlocks      int
	RPCTimeout        time.Duration
	ExplorerTimeout   time.Duration
	ExplorerRateLimit int
}

func (c *Config) Pipeline() PipelineSettings {
	return PipelineSettings{
		RPC:               c.Chain.RPC,
		Explorer:          c.Chain.Explorer,
		StakingContract:   c.Chain.StakingContract,
		MinBlocksPer24h:   c.Thresholds.MinBlocksPer24h,
		MaxBlockDelay:     time.Duration(c.Thresholds.MaxBlockDelayMinutes) * time.Minute,
		SampleBlocks:      c.Advanced.SampleBlocks,
		RPCTimeout:        ParseDuration(c.Advanced.RPCTimeout),
		ExplorerTimeout:   ParseDuration(c.Advanced.ExplorerTimeout),
		ExplorerRateLimit: c.Advanced.ExplorerRateLimit,
	}
}

// ============================================================
// HELPER FUNCTIONS
// ============================================================

// ParseDuration parses duration strings like "1m", "5m", "30s"
func ParseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// CheckIntervalDuration returns the cycle cadence
func (s ScheduleConfig) CheckIntervalDuration() time.Duration {
	return ParseDuration(s.CheckInterval)
}

// Location resolves the summary timezone, falling back to UTC
func (d DailySummaryConfig) Location() *time.Location {
	if d.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports configuration errors that make a monitoring cycle impossible.
func (c *Config) Validate() error {
	var problems []string
	if c.Chain.RPC == "" {
		problems = append(problems, "chain.rpc is required")
	}
	if c.Thresholds.MinBlocksPer24h < 0 {
		problems = append(problems, "thresholds.min_blocks_per_24h must be >= 0")
	}
	if c.Thresholds.MaxBlockDelayMinutes <= 0 {
		problems = append(problems, "thresholds.max_block_delay_minutes must be > 0")
	}
	if c.Schedule.CheckIntervalDuration() <= 0 {
		problems = append(problems, fmt.Sprintf("schedule.check_interval %q is not a valid duration", c.Schedule.CheckInterval))
	}
	if h := c.Schedule.DailySummary.Hour; h < 0 || h > 23 {
		problems = append(problems, "schedule.daily_summary.hour must be within 0-23")
	}
	if tz := c.Schedule.DailySummary.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, fmt.Sprintf("schedule.daily_summary.timezone: %v", err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ============================================================
// LOAD FUNCTION
// ============================================================

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain.Name == "" {
		cfg.Chain.Name = "oasys-mainnet"
	}
	if cfg.Chain.RPC == "" {
		cfg.Chain.RPC = "https://rpc.mainnet.oasys.games"
	}
	if cfg.Chain.Explorer == "" {
		cfg.Chain.Explorer = "https://explorer.oasys.games/api"
	}
	if cfg.Chain.StakingContract == "" {
		cfg.Chain.StakingContract = "0x0000000000000000000000000000000000001000"
	}
	if cfg.Thresholds.MinBlocksPer24h == 0 {
		cfg.Thresholds.MinBlocksPer24h = 24
	}
	if cfg.Thresholds.MaxBlockDelayMinutes == 0 {
		cfg.Thresholds.MaxBlockDelayMinutes = 30
	}
	if cfg.Schedule.CheckInterval == "" {
		cfg.Schedule.CheckInterval = "15m"
	}
	if cfg.Schedule.DailySummary.Hour == 0 {
		cfg.Schedule.DailySummary.Hour = 9
	}
	if cfg.Schedule.DailySummary.Timezone == "" {
		cfg.Schedule.DailySummary.Timezone = "Asia/Tokyo"
	}
	if cfg.Advanced.RPCTimeout == "" {
		cfg.Advanced.RPCTimeout = "10s"
	}
	if cfg.Advanced.ExplorerTimeout == "" {
		cfg.Advanced.ExplorerTimeout = "15s"
	}
	if cfg.Advanced.ExplorerRateLimit == 0 {
		cfg.Advanced.ExplorerRateLimit = 5
	}
	if cfg.Advanced.SampleBlocks == 0 {
		cfg.Advanced.SampleBlocks = 10
	}
	if cfg.Advanced.DashboardPort == 0 {
		cfg.Advanced.DashboardPort = 8888
	}
	if cfg.Advanced.Prometheus.Port == 0 {
		cfg.Advanced.Prometheus.Port = 9999
	}
	if cfg.Advanced.Prometheus.MetricsPrefix == "" {
		cfg.Advanced.Prometheus.MetricsPrefix = "oasys"
	}
}

// applyEnv lets secrets live outside the config file.
func applyEnv(cfg *Config) {
	ch := &cfg.Alerts.Channels
	if v := os.Getenv("OWT_SLACK_WEBHOOK"); v != "" {
		ch.Slack.Webhook = v
		ch.Slack.Enabled = true
	}
	if v := os.Getenv("OWT_DISCORD_WEBHOOK"); v != "" {
		ch.Discord.Webhook = v
		ch.Discord.Enabled = true
	}
	if v := os.Getenv("OWT_TELEGRAM_TOKEN"); v != "" {
		ch.Telegram.Token = v
	}
	if v := os.Getenv("OWT_TELEGRAM_CHAT_ID"); v != "" {
		ch.Telegram.ChatID = v
	}
	if ch.Telegram.Token != "" && ch.Telegram.ChatID != "" && os.Getenv("OWT_TELEGRAM_TOKEN") != "" {
		ch.Telegram.Enabled = true
	}
	if v := os.Getenv("OWT_PAGERDUTY_KEY"); v != "" {
		ch.PagerDuty.APIKey = v
		ch.PagerDuty.Enabled = true
	}
}
