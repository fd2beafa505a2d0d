package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all Cost Sentinel configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Suppression SuppressionConfig `mapstructure:"suppression"`
	Channels    ChannelsConfig    `mapstructure:"channels"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig defines the ingest API settings.
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// ThresholdsConfig defines where the threshold list comes from.
type ThresholdsConfig struct {
	Path        string `mapstructure:"path"`
	MatchPolicy string `mapstructure:"match_policy"`
}

// SuppressionConfig defines the cooldown and hourly rate limit.
type SuppressionConfig struct {
	CooldownMinutes  int `mapstructure:"cooldown_minutes"`
	MaxAlertsPerHour int `mapstructure:"max_alerts_per_hour"`
}

// ChannelsConfig defines the notification transports.
type ChannelsConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
}

// WebhookConfig defines the incoming-webhook channel.
type WebhookConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	Username  string `mapstructure:"username"`
	IconEmoji string `mapstructure:"icon_emoji"`
	Secret    string `mapstructure:"secret"`
}

// SMTPConfig defines the email channel.
type SMTPConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

// DispatchConfig tunes per-channel queues, pacing and retries.
type DispatchConfig struct {
	QueueSize     int     `mapstructure:"queue_size"`
	MaxRetries    int     `mapstructure:"max_retries"`
	RetryBackoff  string  `mapstructure:"retry_backoff"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// HistoryConfig defines the alert ledger backend.
type HistoryConfig struct {
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	RecordFailures bool   `mapstructure:"record_failures"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".sentinel"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("thresholds.path", "")
	v.SetDefault("thresholds.match_policy", "first")
	v.SetDefault("suppression.cooldown_minutes", 30)
	v.SetDefault("suppression.max_alerts_per_hour", 10)
	v.SetDefault("channels.webhook.username", "Cost Sentinel")
	v.SetDefault("channels.webhook.icon_emoji", ":warning:")
	v.SetDefault("channels.smtp.port", 587)
	v.SetDefault("dispatch.queue_size", 16)
	v.SetDefault("dispatch.max_retries", 2)
	v.SetDefault("dispatch.retry_backoff", "500ms")
	v.SetDefault("dispatch.rate_per_second", 1.0)
	v.SetDefault("history.backend", "jsonfile")
	v.SetDefault("history.path", filepath.Join(home, ".sentinel", "alert_history.json"))
	v.SetDefault("history.record_failures", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
