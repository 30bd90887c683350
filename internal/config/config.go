// Package config provides YAML-based configuration loading for Stitch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Stitch configuration, loaded from stitch.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Workdir   string          `yaml:"workdir"`
	Coverage  CoverageConfig  `yaml:"coverage"`
	Agent     AgentConfig     `yaml:"agent"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	GitHub    GitHubConfig    `yaml:"github"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`   // mysql
	Port   int    `yaml:"port"`   // mysql
	Name   string `yaml:"name"`   // mysql database name
	User   string `yaml:"user"`   // mysql
	Pass   string `yaml:"pass"`   // mysql
}

// CoverageConfig holds analysis thresholds.
type CoverageConfig struct {
	Threshold float64 `yaml:"threshold"` // below this a file is flagged for improvement
}

// AgentConfig controls the AI test-generation agent.
type AgentConfig struct {
	Provider    string `yaml:"provider"`     // "claude" or "codex"
	TimeoutMS   int    `yaml:"timeout_ms"`   // wall-clock budget per invocation
	MaxAttempts int    `yaml:"max_attempts"` // generation attempts per improvement job
}

// SchedulerConfig controls the job poll loop.
type SchedulerConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	ReanalyzeCron       string `yaml:"reanalyze_cron"` // 5-field cron expression, empty disables
}

// GitHubConfig holds host API credentials.
type GitHubConfig struct {
	Token string `yaml:"token"` // GITHUB_TOKEN env overrides
}

// DashboardConfig holds HTTP server settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig holds chat notification settings.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with all defaults applied and no file read,
// used when no config file exists yet.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "stitch.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "stitch"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Workdir == "" {
		c.Workdir = filepath.Join(os.TempDir(), "stitch")
	}
	if c.Coverage.Threshold == 0 {
		c.Coverage.Threshold = 80
	}
	if c.Agent.Provider == "" {
		c.Agent.Provider = "claude"
	}
	if c.Agent.TimeoutMS == 0 {
		c.Agent.TimeoutMS = 300000
	}
	if c.Agent.MaxAttempts == 0 {
		c.Agent.MaxAttempts = 3
	}
	if c.Scheduler.PollIntervalSeconds == 0 {
		c.Scheduler.PollIntervalSeconds = 5
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		c.GitHub.Token = tok
	}
	if tok := os.Getenv("SLACK_BOT_TOKEN"); tok != "" {
		c.Notify.Slack.BotToken = tok
	}
	if tok := os.Getenv("DISCORD_BOT_TOKEN"); tok != "" {
		c.Notify.Discord.BotToken = tok
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if c.Coverage.Threshold < 0 || c.Coverage.Threshold > 100 {
		errs = append(errs, fmt.Sprintf("coverage.threshold must be within 0-100, got %g", c.Coverage.Threshold))
	}
	switch c.Agent.Provider {
	case "claude", "codex":
	default:
		errs = append(errs, fmt.Sprintf("agent.provider must be claude or codex, got %q", c.Agent.Provider))
	}
	if c.Agent.MaxAttempts < 1 {
		errs = append(errs, "agent.max_attempts must be at least 1")
	}
	if c.Scheduler.PollIntervalSeconds < 1 {
		errs = append(errs, "scheduler.poll_interval_seconds must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
