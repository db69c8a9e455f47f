package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/quantbot/internal/cache/redis"
	"github.com/alanyoungcy/quantbot/internal/config"
	"github.com/alanyoungcy/quantbot/internal/crypto"
	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/exchange"
	"github.com/alanyoungcy/quantbot/internal/ledger"
	"github.com/alanyoungcy/quantbot/internal/notify"
	"github.com/alanyoungcy/quantbot/internal/store/postgres"
)

// Dependencies bundles every dependency the trade mode needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Journals (nil when postgres is disabled)
	OrderStore    domain.OrderStore
	FillStore     domain.FillStore
	DecisionStore domain.DecisionStore

	// Caches (nil when redis is disabled)
	SnapshotCache domain.SnapshotCache
	EventBus      domain.EventBus
	LockManager   domain.LockManager
	RateLimiter   domain.RateLimiter

	// Exchange
	Client exchange.Client
	Ticker exchange.TickerSource
	Stream *exchange.Stream

	// Trading state
	Ledger *ledger.Ledger

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL journals ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.FillStore = postgres.NewFillStore(pool)
		deps.DecisionStore = postgres.NewDecisionStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Exchange client ---
	// Paper mode may run without credentials; only resolve a secret when one
	// is configured.
	var apiSecret string
	if cfg.Exchange.ApiSecret != "" || cfg.Exchange.EncryptedSecretPath != "" {
		var err error
		apiSecret, err = crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:     cfg.Exchange.ApiSecret,
			EncryptedPath: cfg.Exchange.EncryptedSecretPath,
			Password:      cfg.Exchange.SecretPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange secret: %w", err)
		}
	}

	restClient := exchange.NewRESTClient(exchange.RESTConfig{
		BaseURL:            cfg.Exchange.BaseURL,
		ApiKey:             cfg.Exchange.ApiKey,
		ApiSecret:          apiSecret,
		RecvWindowMs:       cfg.Exchange.RecvWindowMs,
		Timeout:            time.Duration(cfg.Exchange.OrderTimeoutSeconds) * time.Second,
		RateLimitPerMinute: cfg.Exchange.RateLimitPerMinute,
	}, deps.RateLimiter, logger)
	deps.Client = restClient
	deps.Ticker = restClient

	if cfg.Feed.Source == "websocket" {
		deps.Stream = exchange.NewStream(cfg.Exchange.WsURL, cfg.Engine.Symbols, logger)
	}

	// --- Ledger, recovered from the fill journal when one exists ---
	deps.Ledger = ledger.New(cfg.Risk.AllowFlip)
	if deps.FillStore != nil {
		fills, err := deps.FillStore.ListAll(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load fill journal: %w", err)
		}
		if err := deps.Ledger.Replay(fills); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: replay fill journal: %w", err)
		}
		logger.InfoContext(ctx, "ledger recovered from fill journal",
			slog.Int("fills", len(fills)),
			slog.Int("open_positions", len(deps.Ledger.Snapshot())),
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
