// Package config loads the engine configuration from a YAML file with
// environment variable overrides for secrets. A .env file (if present) is
// loaded first so local development matches the deployed environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Apollo         ApolloConfig         `yaml:"apollo"`
	SMTP           SMTPConfig           `yaml:"smtp"`
	SES            SESConfig            `yaml:"ses"`
	Reviews        ReviewsConfig        `yaml:"reviews"`
	LLM            LLMConfig            `yaml:"llm"`
	Outbound       OutboundConfig       `yaml:"outbound"`
	Autopilot      AutopilotConfig      `yaml:"autopilot"`
	Deliverability DeliverabilityConfig `yaml:"deliverability"`
	Reputation     ReputationConfig     `yaml:"reputation"`
	Alerts         AlertsConfig         `yaml:"alerts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	OpsToken string `yaml:"ops_token"`
}

// Addr returns host:port for the HTTP listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis settings for job locks and the processed-message set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// ApolloConfig holds the contact search/enrich API settings.
type ApolloConfig struct {
	APIKey         string   `yaml:"api_key"`
	BaseURL        string   `yaml:"base_url"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	TitleFilters   []string `yaml:"title_filters"`
}

// Timeout returns the configured timeout as a duration.
func (c ApolloConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DefaultTitleFilters returns the contact-role filters for search.
func (c ApolloConfig) DefaultTitleFilters() []string {
	if len(c.TitleFilters) > 0 {
		return c.TitleFilters
	}
	return []string{
		"Owner", "President", "Founder", "General Manager",
		"Office Manager", "Operations Manager", "Service Manager",
	}
}

// SMTPConfig holds SMTP submission settings for outreach sends.
type SMTPConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	FromEmail       string `yaml:"from_email"`
	FromName        string `yaml:"from_name"`
	PhysicalAddress string `yaml:"physical_address"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Addr returns host:port for the SMTP dial.
func (c SMTPConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SESConfig holds AWS SES settings for the alternative email transport.
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// ReviewsConfig holds review-platform API settings.
type ReviewsConfig struct {
	BaseURL        string `yaml:"base_url"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	TokenURL       string `yaml:"token_url"`
	PageSize       int    `yaml:"page_size"`
	MaxPages       int    `yaml:"max_pages"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration.
func (c ReviewsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig holds the Bedrock completion settings used for reply drafting.
type LLMConfig struct {
	Region        string `yaml:"region"`
	ModelID       string `yaml:"model_id"`
	MaxReplyChars int    `yaml:"max_reply_chars"`
	MaxRetries    int    `yaml:"max_retries"`
}

// OutboundConfig holds daily caps for the outreach pipeline.
type OutboundConfig struct {
	SendCapDaily   int `yaml:"send_cap_daily"`
	EnrichCapDaily int `yaml:"enrich_cap_daily"`
	DraftBatch     int `yaml:"draft_batch"`
}

// AutopilotConfig holds follow-up cadence and stop-rule settings.
type AutopilotConfig struct {
	Followup1Days int     `yaml:"followup_1_days"`
	Followup2Days int     `yaml:"followup_2_days"`
	Followup3Days int     `yaml:"followup_3_days"`
	SnoozeDays    int     `yaml:"snooze_days"`
	StopBouncePct float64 `yaml:"stop_bounce_pct"`
	StopOptOutPct float64 `yaml:"stop_optout_pct"`
	PauseHours    int     `yaml:"pause_hours"`
}

// DeliverabilityConfig holds warmup and dynamic-cap settings.
type DeliverabilityConfig struct {
	SendCapMin    int     `yaml:"send_cap_min"`
	WarmupStart   int     `yaml:"warmup_start_cap"`
	WarmupDays    int     `yaml:"warmup_days"`
	CapUpStep     int     `yaml:"cap_up_step"`
	CapDownFactor float64 `yaml:"cap_down_factor"`
}

// ReputationConfig holds per-run call budgets for the reputation engine.
type ReputationConfig struct {
	GlobalPerRun    int `yaml:"global_per_run"`
	PerClientPerRun int `yaml:"per_client_per_run"`
	DraftBatch      int `yaml:"draft_batch"`
	PostBatch       int `yaml:"post_batch"`
}

// AlertsConfig holds operator alert notification settings.
type AlertsConfig struct {
	NotifyEmail string `yaml:"notify_email"`
	Enabled     bool   `yaml:"enabled"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Apollo.BaseURL == "" {
		cfg.Apollo.BaseURL = "https://api.apollo.io/api/v1"
	}
	if cfg.Apollo.TimeoutSeconds == 0 {
		cfg.Apollo.TimeoutSeconds = 30
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TimeoutSeconds == 0 {
		cfg.SMTP.TimeoutSeconds = 25
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Reviews.BaseURL == "" {
		cfg.Reviews.BaseURL = "https://mybusiness.googleapis.com/v4"
	}
	if cfg.Reviews.TokenURL == "" {
		cfg.Reviews.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.Reviews.PageSize == 0 {
		cfg.Reviews.PageSize = 50
	}
	if cfg.Reviews.MaxPages == 0 {
		cfg.Reviews.MaxPages = 50
	}
	if cfg.Reviews.TimeoutSeconds == 0 {
		cfg.Reviews.TimeoutSeconds = 25
	}
	if cfg.Reviews.MaxRetries == 0 {
		cfg.Reviews.MaxRetries = 5
	}
	if cfg.LLM.Region == "" {
		cfg.LLM.Region = "us-east-1"
	}
	if cfg.LLM.ModelID == "" {
		cfg.LLM.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.LLM.MaxReplyChars == 0 {
		cfg.LLM.MaxReplyChars = 600
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 4
	}
	if cfg.Outbound.SendCapDaily == 0 {
		cfg.Outbound.SendCapDaily = 20
	}
	if cfg.Outbound.EnrichCapDaily == 0 {
		cfg.Outbound.EnrichCapDaily = cfg.Outbound.SendCapDaily * 2
	}
	if cfg.Outbound.DraftBatch == 0 {
		cfg.Outbound.DraftBatch = 200
	}
	if cfg.Autopilot.Followup1Days == 0 {
		cfg.Autopilot.Followup1Days = 2
	}
	if cfg.Autopilot.Followup2Days == 0 {
		cfg.Autopilot.Followup2Days = 5
	}
	if cfg.Autopilot.Followup3Days == 0 {
		cfg.Autopilot.Followup3Days = 10
	}
	if cfg.Autopilot.SnoozeDays == 0 {
		cfg.Autopilot.SnoozeDays = 21
	}
	if cfg.Autopilot.StopBouncePct == 0 {
		cfg.Autopilot.StopBouncePct = 8
	}
	if cfg.Autopilot.StopOptOutPct == 0 {
		cfg.Autopilot.StopOptOutPct = 3
	}
	if cfg.Autopilot.PauseHours == 0 {
		cfg.Autopilot.PauseHours = 24
	}
	if cfg.Deliverability.SendCapMin == 0 {
		cfg.Deliverability.SendCapMin = 5
	}
	if cfg.Deliverability.WarmupStart == 0 {
		cfg.Deliverability.WarmupStart = 5
	}
	if cfg.Deliverability.WarmupDays == 0 {
		cfg.Deliverability.WarmupDays = 14
	}
	if cfg.Deliverability.CapUpStep == 0 {
		cfg.Deliverability.CapUpStep = 2
	}
	if cfg.Deliverability.CapDownFactor == 0 {
		cfg.Deliverability.CapDownFactor = 0.5
	}
	if cfg.Reputation.GlobalPerRun == 0 {
		cfg.Reputation.GlobalPerRun = 50
	}
	if cfg.Reputation.PerClientPerRun == 0 {
		cfg.Reputation.PerClientPerRun = 15
	}
	if cfg.Reputation.DraftBatch == 0 {
		cfg.Reputation.DraftBatch = 30
	}
	if cfg.Reputation.PostBatch == 0 {
		cfg.Reputation.PostBatch = 25
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars on the host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("OPS_TOKEN"); v != "" {
		cfg.Server.OpsToken = v
	}
	if v := os.Getenv("APOLLO_API_KEY"); v != "" {
		cfg.Apollo.APIKey = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM_EMAIL"); v != "" {
		cfg.SMTP.FromEmail = v
	}
	if v := os.Getenv("PHYSICAL_ADDRESS"); v != "" {
		cfg.SMTP.PhysicalAddress = v
	}
	if v := os.Getenv("REVIEWS_OAUTH_CLIENT_ID"); v != "" {
		cfg.Reviews.ClientID = v
	}
	if v := os.Getenv("REVIEWS_OAUTH_CLIENT_SECRET"); v != "" {
		cfg.Reviews.ClientSecret = v
	}
	if v := os.Getenv("ALERT_TO_EMAIL"); v != "" {
		cfg.Alerts.NotifyEmail = v
		cfg.Alerts.Enabled = true
	}
	if v := os.Getenv("SEND_CAP_DAILY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Outbound.SendCapDaily = n
		}
	}
	if v := os.Getenv("ENRICH_CAP_DAILY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Outbound.EnrichCapDaily = n
		}
	}

	return cfg, nil
}
