package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"moex-history/internal/logging"
	"moex-history/internal/version"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	ISS       ISSConfig       `mapstructure:"iss"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Output    OutputConfig    `mapstructure:"output"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Chart     ChartConfig     `mapstructure:"chart"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig locates the instrument list.
type SourceConfig struct {
	TickersFile string `mapstructure:"tickers_file"`
}

// ISSConfig covers MOEX ISS connectivity.
type ISSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Engine         string        `mapstructure:"engine"`
	Market         string        `mapstructure:"market"`
	Board          string        `mapstructure:"board"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// BatchConfig bounds pagination and parallelism.
type BatchConfig struct {
	PageSize       int `mapstructure:"page_size"`
	MaxPages       int `mapstructure:"max_pages"`
	Concurrency    int `mapstructure:"concurrency"`
	PersistWorkers int `mapstructure:"persist_workers"`
}

// OutputConfig sets where CSV files land.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig encapsulates the optional PostgreSQL mirror.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig configures the redis page cache.
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// SchedulerConfig governs how often `run` starts a batch.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// AlertingConfig defines batch summary routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	OnPartial bool           `mapstructure:"on_partial"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes Prometheus collectors.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// ChartConfig sets PNG dimensions for the chart command.
type ChartConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MOEXHISTORY")
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
	v.SetDefault("app.name", "moexhistory")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("source.tickers_file", "tickers.txt")

	v.SetDefault("iss.base_url", "https://iss.moex.com/iss")
	v.SetDefault("iss.engine", "stock")
	v.SetDefault("iss.market", "shares")
	v.SetDefault("iss.board", "TQBR")
	v.SetDefault("iss.request_timeout", "60s")
	v.SetDefault("iss.user_agent", version.UserAgent())

	v.SetDefault("batch.page_size", 100)
	v.SetDefault("batch.max_pages", 5000)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.persist_workers", 4)

	v.SetDefault("output.dir", "data")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.key_prefix", "moexhistory")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.on_partial", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("chart.width", 1280)
	v.SetDefault("chart.height", 720)
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Batch.PageSize <= 0 {
		return fmt.Errorf("batch.page_size must be greater than zero")
	}
	if c.Batch.MaxPages < 0 {
		return fmt.Errorf("batch.max_pages cannot be negative")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be greater than zero")
	}
	if c.Batch.PersistWorkers <= 0 {
		return fmt.Errorf("batch.persist_workers must be greater than zero")
	}
	if c.ISS.RequestTimeout <= 0 {
		return fmt.Errorf("iss.request_timeout must be greater than zero")
	}
	if strings.TrimSpace(c.ISS.BaseURL) == "" {
		return fmt.Errorf("iss.base_url is required")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ApplyBatchOverrides replaces batch settings with positive CLI overrides.
func (c *Config) ApplyBatchOverrides(concurrency, workers int, outputDir string) {
	if concurrency > 0 {
		c.Batch.Concurrency = concurrency
	}
	if workers > 0 {
		c.Batch.PersistWorkers = workers
	}
	if strings.TrimSpace(outputDir) != "" {
		c.Output.Dir = outputDir
	}
}
