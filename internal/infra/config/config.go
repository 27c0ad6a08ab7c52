package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override config file values. Secrets should be
// supplied this way rather than committed to the YAML file.
const (
	EnvSlackBotToken      = "ASKDESK_SLACK_BOT_TOKEN"
	EnvSlackSigningSecret = "ASKDESK_SLACK_SIGNING_SECRET"
	EnvAgentsAPIKey       = "ASKDESK_AGENTS_API_KEY"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Slack     SlackConfig     `yaml:"slack"`
	Agents    AgentsConfig    `yaml:"agents"`
	Relay     RelayConfig     `yaml:"relay"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`             // default ":8080"
	RequestsPerMin int    `yaml:"requests_per_min"` // default 100
	Burst          int    `yaml:"burst"`            // default 20
}

// SlackConfig holds the chat platform credentials.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token"`
	SigningSecret string `yaml:"signing_secret"`
}

// AgentsConfig holds the handler-runtime client settings.
type AgentsConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	InvokeTimeout  time.Duration `yaml:"invoke_timeout"`   // default 120s
	RequestsPerSec float64       `yaml:"requests_per_sec"` // default 5
	Burst          int           `yaml:"burst"`            // default 10
	// Circuit breaker: consecutive failures before the circuit opens, and
	// how long it stays open before a half-open probe.
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"` // default 5
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`      // default 30s
}

// RelayConfig tunes the progress-relay timing.
type RelayConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`  // default 300ms
	EventPause    time.Duration `yaml:"event_pause"`    // default 400ms
	FinalAttempts int           `yaml:"final_attempts"` // default 3
	FinalBackoff  time.Duration `yaml:"final_backoff"`  // default 500ms
}

// KnowledgeConfig locates the JSON datasets and their refresh schedule.
type KnowledgeConfig struct {
	Dir             string `yaml:"dir"`
	RefreshSchedule string `yaml:"refresh_schedule"` // cron expression, default "@every 10m"
}

// LedgerConfig holds the event-deduplication store settings.
type LedgerConfig struct {
	Path string        `yaml:"path"` // default "askdesk.db"
	TTL  time.Duration `yaml:"ttl"`  // default 1h
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
	Output string `yaml:"output"` // stdout|stderr|<path>
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout|noop
}

// Load reads the config file, applies environment overrides and defaults,
// and validates the result. A missing file is not an error when every
// required value arrives via the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Proceed with defaults + env.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSlackBotToken); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv(EnvSlackSigningSecret); v != "" {
		c.Slack.SigningSecret = v
	}
	if v := os.Getenv(EnvAgentsAPIKey); v != "" {
		c.Agents.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestsPerMin <= 0 {
		c.Server.RequestsPerMin = 100
	}
	if c.Server.Burst <= 0 {
		c.Server.Burst = 20
	}
	if c.Agents.InvokeTimeout <= 0 {
		c.Agents.InvokeTimeout = 120 * time.Second
	}
	if c.Agents.RequestsPerSec <= 0 {
		c.Agents.RequestsPerSec = 5
	}
	if c.Agents.Burst <= 0 {
		c.Agents.Burst = 10
	}
	if c.Agents.BreakerMaxFailures == 0 {
		c.Agents.BreakerMaxFailures = 5
	}
	if c.Agents.BreakerTimeout <= 0 {
		c.Agents.BreakerTimeout = 30 * time.Second
	}
	if c.Relay.TickInterval <= 0 {
		c.Relay.TickInterval = 300 * time.Millisecond
	}
	if c.Relay.EventPause <= 0 {
		c.Relay.EventPause = 400 * time.Millisecond
	}
	if c.Relay.FinalAttempts <= 0 {
		c.Relay.FinalAttempts = 3
	}
	if c.Relay.FinalBackoff <= 0 {
		c.Relay.FinalBackoff = 500 * time.Millisecond
	}
	if c.Knowledge.Dir == "" {
		c.Knowledge.Dir = "./data"
	}
	if c.Knowledge.RefreshSchedule == "" {
		c.Knowledge.RefreshSchedule = "@every 10m"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "askdesk.db"
	}
	if c.Ledger.TTL <= 0 {
		c.Ledger.TTL = time.Hour
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
}

// Validate fails fast on anything the process cannot run without.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("config: slack bot token missing (set %s)", EnvSlackBotToken)
	}
	if c.Slack.SigningSecret == "" {
		return fmt.Errorf("config: slack signing secret missing (set %s)", EnvSlackSigningSecret)
	}
	if c.Agents.BaseURL == "" {
		return fmt.Errorf("config: agents base_url missing")
	}
	return nil
}
