package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies QUANTBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known QUANTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "QUANTBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "QUANTBOT_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.ApiKey, "QUANTBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "QUANTBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "QUANTBOT_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "QUANTBOT_EXCHANGE_SECRET_PASSWORD")
	setInt(&cfg.Exchange.RecvWindowMs, "QUANTBOT_EXCHANGE_RECV_WINDOW_MS")
	setInt(&cfg.Exchange.OrderTimeoutSeconds, "QUANTBOT_EXCHANGE_ORDER_TIMEOUT_SECONDS")
	setInt(&cfg.Exchange.RateLimitPerMinute, "QUANTBOT_EXCHANGE_RATE_LIMIT_PER_MINUTE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "QUANTBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "QUANTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "QUANTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "QUANTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "QUANTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "QUANTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "QUANTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "QUANTBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "QUANTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "QUANTBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "QUANTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "QUANTBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "QUANTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QUANTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QUANTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "QUANTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "QUANTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "QUANTBOT_REDIS_TLS_ENABLED")

	// ── Engine ──
	setInt(&cfg.Engine.TickIntervalSeconds, "QUANTBOT_ENGINE_TICK_INTERVAL_SECONDS")
	setStringSlice(&cfg.Engine.Symbols, "QUANTBOT_ENGINE_SYMBOLS")
	setInt(&cfg.Engine.ReconcileSeconds, "QUANTBOT_ENGINE_RECONCILE_SECONDS")

	// ── Feed ──
	setStr(&cfg.Feed.Source, "QUANTBOT_FEED_SOURCE")
	setInt(&cfg.Feed.WindowSize, "QUANTBOT_FEED_WINDOW_SIZE")
	setInt(&cfg.Feed.PollIntervalSeconds, "QUANTBOT_FEED_POLL_INTERVAL_SECONDS")

	// ── Paper ──
	setInt(&cfg.Paper.SlippageBps, "QUANTBOT_PAPER_SLIPPAGE_BPS")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionSize, "QUANTBOT_RISK_MAX_POSITION_SIZE")
	setInt(&cfg.Risk.MaxDailyTrades, "QUANTBOT_RISK_MAX_DAILY_TRADES")
	setFloat64(&cfg.Risk.MaxVolatilityPct, "QUANTBOT_RISK_MAX_VOLATILITY_PCT")
	setFloat64(&cfg.Risk.StopLossPct, "QUANTBOT_RISK_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.TakeProfitPct, "QUANTBOT_RISK_TAKE_PROFIT_PCT")
	setBool(&cfg.Risk.AllowFlip, "QUANTBOT_RISK_ALLOW_FLIP")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "QUANTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "QUANTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "QUANTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "QUANTBOT_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "QUANTBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "QUANTBOT_METRICS_ADDR")

	// ── Top-level ──
	setStr(&cfg.Mode, "QUANTBOT_MODE")
	setStr(&cfg.LogLevel, "QUANTBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
