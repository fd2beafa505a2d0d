package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/internal/config"
	"github.com/cloudcost-tools/cost-sentinel/pkg/engine"
	"github.com/cloudcost-tools/cost-sentinel/pkg/history"
	"github.com/cloudcost-tools/cost-sentinel/pkg/notify"
	"github.com/cloudcost-tools/cost-sentinel/pkg/suppress"
	"github.com/cloudcost-tools/cost-sentinel/pkg/thresholds"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Cost Sentinel - cost anomaly alert evaluation and delivery",
	Long: `Cost Sentinel ingests detected cost anomalies and cost-spike signals and
decides when they become human-visible notifications. It matches signals
against configurable thresholds, suppresses noisy duplicates via cooldown
and hourly rate limits, dispatches to webhook and email channels, and keeps
a durable alert history for statistics.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.sentinel/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initChannels creates notification channels from config. A channel with
// unusable settings is skipped with a warning rather than aborting startup.
func initChannels(cfg *config.Config, logger *slog.Logger) []notify.Channel {
	var channels []notify.Channel

	if cfg.Channels.Webhook.Enabled && cfg.Channels.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookChannel(
			cfg.Channels.Webhook.URL,
			cfg.Channels.Webhook.Username,
			cfg.Channels.Webhook.IconEmoji,
			cfg.Channels.Webhook.Secret,
		))
	}

	if cfg.Channels.SMTP.Enabled {
		ch, err := notify.NewEmailChannel(notify.EmailConfig{
			Host:       cfg.Channels.SMTP.Host,
			Port:       cfg.Channels.SMTP.Port,
			Username:   cfg.Channels.SMTP.Username,
			Password:   cfg.Channels.SMTP.Password,
			From:       cfg.Channels.SMTP.From,
			Recipients: cfg.Channels.SMTP.Recipients,
		})
		if err != nil {
			logger.Warn("email channel disabled", "error", err)
		} else {
			channels = append(channels, ch)
		}
	}

	return channels
}

// initHistory creates the alert ledger backend from config.
func initHistory(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case "sqlite":
		path := cfg.History.Path
		if strings.HasSuffix(path, ".json") {
			path = strings.TrimSuffix(path, ".json") + ".db"
		}
		return history.NewSQLite(path)
	case "", "jsonfile":
		return history.NewJSONFile(cfg.History.Path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// buildEngine assembles a fully wired engine. The returned cleanup closes
// the dispatcher workers and the history store.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, history.Store, func(), error) {
	store := thresholds.Load(cfg.Thresholds.Path,
		thresholds.MatchPolicy(cfg.Thresholds.MatchPolicy), logger)

	tracker := suppress.New(suppress.Config{
		CooldownMinutes:  cfg.Suppression.CooldownMinutes,
		MaxAlertsPerHour: cfg.Suppression.MaxAlertsPerHour,
	})

	backoff, err := time.ParseDuration(cfg.Dispatch.RetryBackoff)
	if err != nil {
		backoff = 0
	}
	dispatcher := notify.NewDispatcher(initChannels(cfg, logger), notify.Options{
		QueueSize:     cfg.Dispatch.QueueSize,
		MaxRetries:    cfg.Dispatch.MaxRetries,
		RetryBackoff:  backoff,
		RatePerSecond: cfg.Dispatch.RatePerSecond,
	}, logger)

	hist, err := initHistory(cfg)
	if err != nil {
		dispatcher.Close()
		return nil, nil, nil, fmt.Errorf("init history: %w", err)
	}

	var opts []engine.Option
	if cfg.History.RecordFailures {
		opts = append(opts, engine.WithFailureRecords())
	}

	eng := engine.New(store, tracker, dispatcher, hist, logger, opts...)
	cleanup := func() {
		dispatcher.Close()
		if err := hist.Close(); err != nil {
			logger.Error("close history store", "error", err)
		}
	}
	return eng, hist, cleanup, nil
}
