// Package config defines the top-level configuration for the trading bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by QUANTBOT_* environment variables.
type Config struct {
	Exchange   ExchangeConfig   `toml:"exchange"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Engine     EngineConfig     `toml:"engine"`
	Feed       FeedConfig       `toml:"feed"`
	Paper      PaperConfig      `toml:"paper"`
	Risk       RiskConfig       `toml:"risk"`
	Strategies []StrategyConfig `toml:"strategies"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ExchangeConfig holds exchange API endpoints and credentials. The API secret
// can be supplied inline or as an encrypted key file plus password.
type ExchangeConfig struct {
	BaseURL             string `toml:"base_url"`
	WsURL               string `toml:"ws_url"`
	ApiKey              string `toml:"api_key"`
	ApiSecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	RecvWindowMs        int    `toml:"recv_window_ms"`
	OrderTimeoutSeconds int    `toml:"order_timeout_seconds"`
	RateLimitPerMinute  int    `toml:"rate_limit_per_minute"`
}

// PostgresConfig holds PostgreSQL connection parameters for the journals.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// EngineConfig holds the driving-loop parameters.
type EngineConfig struct {
	TickIntervalSeconds int      `toml:"tick_interval_seconds"`
	Symbols             []string `toml:"symbols"`
	ReconcileSeconds    int      `toml:"reconcile_seconds"`
	StatusSeconds       int      `toml:"status_seconds"` // 0 disables the periodic status summary
}

// FeedConfig holds market data parameters.
type FeedConfig struct {
	Source              string `toml:"source"` // "rest" or "websocket"
	WindowSize          int    `toml:"window_size"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// PaperConfig holds paper-trading fill simulation parameters.
type PaperConfig struct {
	SlippageBps int `toml:"slippage_bps"`
}

// RiskConfig holds the global risk limits. A strategy entry may carry its own
// overriding risk section.
type RiskConfig struct {
	MaxPositionSize  float64 `toml:"max_position_size"`
	MaxDailyTrades   int     `toml:"max_daily_trades"`
	MaxVolatilityPct float64 `toml:"max_volatility_pct"`
	StopLossPct      float64 `toml:"stop_loss_pct"`
	TakeProfitPct    float64 `toml:"take_profit_pct"`
	AllowFlip        bool    `toml:"allow_flip"`
}

// StrategyConfig describes one strategy instance to run.
type StrategyConfig struct {
	Name    string         `toml:"name"`
	Enabled bool           `toml:"enabled"`
	Symbols []string       `toml:"symbols"`
	Params  StrategyParams `toml:"params"`
	Risk    *RiskConfig    `toml:"risk"` // nil means inherit the global limits
}

// StrategyParams holds the per-strategy tunables.
type StrategyParams struct {
	SignalIntervalSeconds int            `toml:"signal_interval_seconds"`
	Size                  float64        `toml:"size"`
	Extra                 map[string]any `toml:"extra"`
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig holds the Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Defaults returns a Config pre-populated with sensible defaults. Load merges
// the TOML file on top of this.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Exchange: ExchangeConfig{
			RecvWindowMs:        5000,
			OrderTimeoutSeconds: 10,
			RateLimitPerMinute:  1200,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 4,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Engine: EngineConfig{
			TickIntervalSeconds: 5,
			ReconcileSeconds:    300,
			StatusSeconds:       3600,
		},
		Feed: FeedConfig{
			Source:              "rest",
			WindowSize:          60,
			PollIntervalSeconds: 5,
		},
		Paper: PaperConfig{
			SlippageBps: 5,
		},
		Risk: RiskConfig{
			MaxPositionSize:  1.0,
			MaxDailyTrades:   10,
			MaxVolatilityPct: 5.0,
			StopLossPct:      2.0,
			TakeProfitPct:    4.0,
		},
		Metrics: MetricsConfig{
			Addr: ":9102",
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper": true,
	"live":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange — live mode requires credentials and endpoints.
	if strings.ToLower(c.Mode) == "live" {
		if c.Exchange.BaseURL == "" {
			errs = append(errs, "exchange: base_url must not be empty for live mode")
		}
		if c.Exchange.ApiKey == "" {
			errs = append(errs, "exchange: api_key is required for live mode")
		}
		if c.Exchange.ApiSecret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or encrypted_secret_path must be set for live mode")
		}
		if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
			errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
		}
	}
	if c.Exchange.OrderTimeoutSeconds <= 0 {
		errs = append(errs, "exchange: order_timeout_seconds must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Engine
	if c.Engine.TickIntervalSeconds < 1 {
		errs = append(errs, "engine: tick_interval_seconds must be >= 1")
	}
	if len(c.Engine.Symbols) == 0 {
		errs = append(errs, "engine: symbols must not be empty")
	}
	if c.Engine.StatusSeconds < 0 {
		errs = append(errs, "engine: status_seconds must be >= 0")
	}

	// Feed
	if c.Feed.Source != "rest" && c.Feed.Source != "websocket" {
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: rest, websocket)", c.Feed.Source))
	}
	if c.Feed.WindowSize < 2 {
		errs = append(errs, "feed: window_size must be >= 2")
	}

	// Paper
	if c.Paper.SlippageBps < 0 {
		errs = append(errs, "paper: slippage_bps must be >= 0")
	}

	// Risk — global limits, then per-strategy overrides.
	errs = append(errs, validateRisk("risk", c.Risk)...)

	// Strategies
	if len(enabledStrategies(c.Strategies)) == 0 {
		errs = append(errs, "strategies: at least one enabled strategy is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Strategies {
		prefix := fmt.Sprintf("strategies[%d]", i)
		if s.Name == "" {
			errs = append(errs, prefix+": name must not be empty")
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate strategy name %q", prefix, s.Name))
		}
		seen[s.Name] = true
		if !s.Enabled {
			continue
		}
		if len(s.Symbols) == 0 {
			errs = append(errs, prefix+": symbols must not be empty")
		}
		if s.Params.SignalIntervalSeconds <= 0 {
			errs = append(errs, prefix+": params.signal_interval_seconds must be > 0")
		}
		if s.Params.Size <= 0 {
			errs = append(errs, prefix+": params.size must be > 0")
		}
		if s.Risk != nil {
			errs = append(errs, validateRisk(prefix+".risk", *s.Risk)...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RiskFor returns the effective risk limits for the named strategy: its own
// override when present, otherwise the global limits.
func (c *Config) RiskFor(strategyName string) RiskConfig {
	for _, s := range c.Strategies {
		if s.Name == strategyName && s.Risk != nil {
			return *s.Risk
		}
	}
	return c.Risk
}

func validateRisk(prefix string, r RiskConfig) []string {
	var errs []string
	if r.MaxPositionSize <= 0 {
		errs = append(errs, prefix+": max_position_size must be > 0")
	}
	if r.MaxDailyTrades < 1 {
		errs = append(errs, prefix+": max_daily_trades must be >= 1")
	}
	if r.MaxVolatilityPct <= 0 {
		errs = append(errs, prefix+": max_volatility_pct must be > 0")
	}
	if r.StopLossPct < 0 {
		errs = append(errs, prefix+": stop_loss_pct must be >= 0")
	}
	if r.TakeProfitPct < 0 {
		errs = append(errs, prefix+": take_profit_pct must be >= 0")
	}
	return errs
}

func enabledStrategies(list []StrategyConfig) []StrategyConfig {
	out := make([]StrategyConfig, 0, len(list))
	for _, s := range list {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
