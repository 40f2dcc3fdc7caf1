package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"price-feed-observer/internal/logging"
	"price-feed-observer/internal/storage"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Logging   logging.Config `mapstructure:"logging"`
	Scheduler SchedConfig    `mapstructure:"scheduler"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Alerting  AlertingConfig `mapstructure:"alerting"`
	Health    HealthConfig   `mapstructure:"health"`
	History   HistoryConfig  `mapstructure:"history"`
	Source    SourceConfig   `mapstructure:"source"`

	// Publishers maps publisher public keys to display names.
	Publishers map[string]string `mapstructure:"publishers"`

	// Checks is the raw rule tree: `global.<CheckType>.{...}` plus
	// optional `<symbol>.<CheckType>.{...}` overrides. Kept untyped
	// because symbols are free-form keys; the evaluator's resolver
	// parses and validates it.
	Checks map[string]any `mapstructure:"checks"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Network     string `mapstructure:"network"`
}

// SchedConfig governs cycle cadence.
type SchedConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// StorageConfig selects and configures the durable alert-state backend.
type StorageConfig struct {
	Backend  string                 `mapstructure:"backend"` // file, postgres, redis
	FilePath string                 `mapstructure:"file_path"`
	Postgres storage.PostgresConfig `mapstructure:"postgres"`
	Redis    storage.RedisConfig    `mapstructure:"redis"`
}

// AlertingConfig defines channel routing and hysteresis cadence.
type AlertingConfig struct {
	// Events is the ordered list of enabled channel names.
	Events          []string       `mapstructure:"events"`
	WindowInterval  time.Duration  `mapstructure:"window_interval"`
	ReAlertInterval time.Duration  `mapstructure:"realert_interval"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
	Zenduty         ZendutyConfig  `mapstructure:"zenduty"`
	Kafka           KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ZendutyConfig configures the incident-management channel.
type ZendutyConfig struct {
	IntegrationKey string `mapstructure:"integration_key"`
	APIBase        string `mapstructure:"api_base"`
}

// KafkaConfig configures the event-stream channel.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// HealthConfig sets the probe/metrics listener.
type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

// HistoryConfig bounds the publisher price-history windows.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// SourceConfig selects where cycle snapshots come from.
type SourceConfig struct {
	Path string `mapstructure:"path"`
}

// knownChannels is the closed set of notification channel names. An
// unknown name in `alerting.events` is a startup error, not a runtime
// lookup failure.
var knownChannels = map[string]bool{
	"log":      true,
	"kafka":    true,
	"telegram": true,
	"zenduty":  true,
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OBSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "price-feed-observer")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.network", "mainnet")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.file_path", "alert-state.json")

	v.SetDefault("alerting.events", []string{"log"})
	v.SetDefault("alerting.window_interval", "5m")
	v.SetDefault("alerting.realert_interval", "1h")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.write_timeout", "10s")
	v.SetDefault("alerting.kafka.max_attempts", 3)

	v.SetDefault("health.addr", ":8080")

	v.SetDefault("history.capacity", 16)

	v.SetDefault("source.path", "snapshots.json")

	// Baseline rule set; per-symbol overrides layer on top.
	v.SetDefault("checks.global.PriceFeedOfflineCheck", map[string]any{
		"enable": true, "max_slot_distance": 25, "abandoned_slot_distance": 100000,
	})
	v.SetDefault("checks.global.PriceFeedConfidenceIntervalCheck", map[string]any{
		"enable": true, "min_confidence_interval": 0,
	})
	v.SetDefault("checks.global.PriceFeedReferenceDeviationCheck", map[string]any{
		"enable": true, "max_deviation": 0.05, "max_staleness": 300,
	})
	v.SetDefault("checks.global.PriceFeedCrossChainOnlineCheck", map[string]any{
		"enable": true, "max_staleness": 60,
	})
	v.SetDefault("checks.global.PriceFeedCrossChainDeviationCheck", map[string]any{
		"enable": true, "max_deviation": 5, "max_staleness": 60,
	})
	v.SetDefault("checks.global.PublisherAggregateCheck", map[string]any{
		"enable": true, "max_interval_distance": 4,
	})
	v.SetDefault("checks.global.PublisherConfidenceIntervalCheck", map[string]any{
		"enable": true, "min_confidence_interval": 0,
	})
	v.SetDefault("checks.global.PublisherOfflineCheck", map[string]any{
		"enable": true, "max_slot_distance": 25, "abandoned_slot_distance": 100000,
	})
	v.SetDefault("checks.global.PublisherPriceCheck", map[string]any{
		"enable": true, "max_aggregate_distance": 6, "max_slot_distance": 25,
	})
	v.SetDefault("checks.global.PublisherStalledCheck", map[string]any{
		"enable": false, "stall_time_limit": 300, "abandoned_time_limit": 1800,
		"max_slot_distance": 25, "noise_threshold": 1e-4, "min_noise_samples": 5,
	})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs startup-time sanity checks. Check-rule validation
// happens separately in the evaluator's resolver, which owns the tree.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be greater than zero")
	}
	if c.Source.Path == "" {
		return fmt.Errorf("source.path 必须配置")
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.FilePath == "" {
			return fmt.Errorf("storage.file_path 必须配置")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn 必须配置")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr 必须配置")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of file, postgres, redis", c.Storage.Backend)
	}

	for _, name := range c.Alerting.Events {
		if !knownChannels[name] {
			return fmt.Errorf("alerting.events: unknown channel %q", name)
		}
	}

	if c.channelEnabled("telegram") {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.channelEnabled("zenduty") && c.Alerting.Zenduty.IntegrationKey == "" {
		return fmt.Errorf("alerting.zenduty.integration_key 必须配置")
	}
	if c.channelEnabled("kafka") {
		if len(c.Alerting.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerting.kafka.brokers 必须配置")
		}
		if c.Alerting.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.topic 必须配置")
		}
	}

	return nil
}

func (c *Config) channelEnabled(name string) bool {
	for _, event := range c.Alerting.Events {
		if event == name {
			return true
		}
	}
	return false
}
