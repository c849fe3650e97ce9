package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"ensemble-trader/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Quotes        QuotesConfig        `mapstructure:"quotes"`
	Poller        PollerConfig        `mapstructure:"poller"`
	Ensemble      EnsembleConfig      `mapstructure:"ensemble"`
	Filter        FilterConfig        `mapstructure:"filter"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Account       AccountConfig       `mapstructure:"account"`
	Trading       TradingConfig       `mapstructure:"trading"`
	Broker        BrokerConfig        `mapstructure:"broker"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	Export        ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the trade ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// QuotesConfig covers the upstream market-data API.
type QuotesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	HistoryWindow  int           `mapstructure:"history_window"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PollerConfig governs per-symbol polling cadence and circuit breaking.
type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxFailures  int           `mapstructure:"max_failures"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

// SymbolConfig identifies one watched instrument.
type SymbolConfig struct {
	Symbol string `mapstructure:"symbol"`
	Market string `mapstructure:"market"`
}

// EnsembleConfig tunes the strategy fan-out.
type EnsembleConfig struct {
	EvaluatorTimeout time.Duration      `mapstructure:"evaluator_timeout"`
	Weights          map[string]float64 `mapstructure:"weights"`
}

// FilterConfig tunes the quality gate.
type FilterConfig struct {
	ConfidenceThreshold float64      `mapstructure:"confidence_threshold"`
	Oracle              OracleConfig `mapstructure:"oracle"`
}

// OracleConfig covers the external scoring oracle.
type OracleConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RiskConfig selects the active tier and portfolio limits.
type RiskConfig struct {
	Tier           string  `mapstructure:"tier"`
	HeatCeilingPct float64 `mapstructure:"heat_ceiling_pct"`
}

// AccountConfig seeds the trading account.
type AccountConfig struct {
	Balance  float64 `mapstructure:"balance"`
	Currency string  `mapstructure:"currency"`
}

// TradingConfig selects pipeline behaviour and watched symbols.
type TradingConfig struct {
	Mode    string         `mapstructure:"mode"`
	Symbols []SymbolConfig `mapstructure:"symbols"`
}

// Trading modes accepted by TradingConfig.Mode.
const (
	ModeObserve  = "observe"
	ModeSimulate = "simulate"
	ModeLive     = "live"
)

// BrokerConfig covers the order-submission collaborator.
type BrokerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxFailures    uint32        `mapstructure:"max_failures"`
	OpenTimeout    time.Duration `mapstructure:"open_timeout"`
}

// NotificationsConfig defines event delivery routing.
type NotificationsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// QuotaConfig bounds daily signal requests per user.
type QuotaConfig struct {
	DailyLimit  int `mapstructure:"daily_limit"`
	BonusPerAd  int `mapstructure:"bonus_per_ad"`
	MaxBonusAds int `mapstructure:"max_bonus_ads"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENSEMBLETRADER")
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
	v.SetDefault("app.name", "ensembletrader")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("quotes.request_timeout", "10s")
	v.SetDefault("quotes.rate_per_second", 5.0)
	v.SetDefault("quotes.history_window", 200)
	v.SetDefault("quotes.user_agent", "ensembletrader/1.0")

	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.fetch_timeout", "10s")
	v.SetDefault("poller.max_failures", 3)
	v.SetDefault("poller.cooldown", "5m")

	v.SetDefault("ensemble.evaluator_timeout", "2s")

	v.SetDefault("filter.confidence_threshold", 0.5)
	v.SetDefault("filter.oracle.enabled", false)
	v.SetDefault("filter.oracle.request_timeout", "5s")

	v.SetDefault("risk.tier", "low")
	v.SetDefault("risk.heat_ceiling_pct", 15.0)

	v.SetDefault("account.balance", 1000.0)
	v.SetDefault("account.currency", "USDT")

	v.SetDefault("trading.mode", ModeObserve)

	v.SetDefault("broker.request_timeout", "10s")
	v.SetDefault("broker.max_failures", 5)
	v.SetDefault("broker.open_timeout", "60s")

	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("quota.daily_limit", 5)
	v.SetDefault("quota.bonus_per_ad", 1)
	v.SetDefault("quota.max_bonus_ads", 3)

	v.SetDefault("export.max_data_points", 100000)
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
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if c.Poller.MaxFailures <= 0 {
		return fmt.Errorf("poller.max_failures must be greater than zero")
	}
	if c.Quotes.HistoryWindow <= 0 {
		return fmt.Errorf("quotes.history_window must be greater than zero")
	}
	if c.Ensemble.EvaluatorTimeout <= 0 {
		return fmt.Errorf("ensemble.evaluator_timeout must be greater than zero")
	}
	if c.Filter.ConfidenceThreshold < 0 || c.Filter.ConfidenceThreshold > 1 {
		return fmt.Errorf("filter.confidence_threshold must be within [0,1]")
	}
	if c.Risk.HeatCeilingPct <= 0 {
		return fmt.Errorf("risk.heat_ceiling_pct must be greater than zero")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be greater than zero")
	}
	switch c.Trading.Mode {
	case ModeObserve, ModeSimulate, ModeLive:
	default:
		return fmt.Errorf("trading.mode must be one of observe, simulate, live")
	}
	if c.Trading.Mode == ModeLive && c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required when trading.mode is live")
	}
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota.daily_limit must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.BotToken == "" {
			return fmt.Errorf("notifications.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("notifications.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
