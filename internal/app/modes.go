package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/quantbot/internal/config"
	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/engine"
	"github.com/alanyoungcy/quantbot/internal/executor"
	"github.com/alanyoungcy/quantbot/internal/feed"
	"github.com/alanyoungcy/quantbot/internal/ledger"
	"github.com/alanyoungcy/quantbot/internal/metrics"
	"github.com/alanyoungcy/quantbot/internal/risk"
	"github.com/alanyoungcy/quantbot/internal/strategy"
)

// instanceLockTTL bounds how long a crashed instance keeps the trading fence
// locked before another instance can take over.
const instanceLockTTL = 12 * time.Hour

// TradeMode starts the market data feed, the decision engine, and the
// supporting goroutines for the configured mode (paper or live), then blocks
// until the context is cancelled or a fatal error occurs.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.String("mode", a.cfg.Mode))

	// Fence off a second instance trading the same account.
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "engine:trader", instanceLockTTL)
		if err != nil {
			return fmt.Errorf("app: acquire instance lock: %w", err)
		}
		defer unlock()
	}

	// Strategies and their evaluation gates.
	registry := strategy.NewRegistry()
	scheduler := strategy.NewScheduler()
	for _, sc := range a.cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		strat, err := strategy.New(sc.Name, strategy.Params{
			Size:  decimal.NewFromFloat(sc.Params.Size),
			Extra: sc.Params.Extra,
		})
		if err != nil {
			return fmt.Errorf("app: build strategy %s: %w", sc.Name, err)
		}
		registry.Register(strat, sc.Symbols)
		scheduler.SetInterval(sc.Name, time.Duration(sc.Params.SignalIntervalSeconds)*time.Second)
		a.logger.InfoContext(ctx, "strategy registered",
			slog.String("strategy", sc.Name),
			slog.Any("symbols", sc.Symbols),
			slog.Int("interval_seconds", sc.Params.SignalIntervalSeconds),
		)
	}

	// The validator reads positions through the reservation overlay so size
	// approved for in-flight orders counts against the limits while the
	// order is still on the wire.
	reserved := ledger.NewReserved(deps.Ledger)
	validator := risk.NewValidator(reserved, risk.NewDailyCounter(), a.logger)

	var exchangeClient = deps.Client
	mode := executor.ModePaper
	if a.cfg.Mode == "live" {
		mode = executor.ModeLive
	} else {
		// Paper mode never talks to the order endpoints.
		exchangeClient = nil
	}
	exec := executor.New(executor.Config{
		Mode:         mode,
		SlippageBps:  a.cfg.Paper.SlippageBps,
		OrderTimeout: time.Duration(a.cfg.Exchange.OrderTimeoutSeconds) * time.Second,
	}, exchangeClient, deps.OrderStore, deps.FillStore, a.logger)

	market := feed.New(a.cfg.Engine.Symbols, a.cfg.Feed.WindowSize, deps.SnapshotCache, a.logger)

	eng := engine.New(engine.Config{
		Symbols:      a.cfg.Engine.Symbols,
		Registry:     registry,
		Scheduler:    scheduler,
		Validator:    validator,
		Executor:     exec,
		Feed:         market,
		Ledger:       deps.Ledger,
		Reserved:     reserved,
		LimitsFor:    func(name string) domain.RiskLimits { return riskLimits(a.cfg.RiskFor(name)) },
		GlobalLimits: riskLimits(a.cfg.Risk),
		Notifier:     deps.Notifier,
		Decisions:    deps.DecisionStore,
		Bus:          deps.EventBus,
		TickInterval: time.Duration(a.cfg.Engine.TickIntervalSeconds) * time.Second,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	// Market data.
	if deps.Stream != nil {
		g.Go(func() error {
			return deps.Stream.Run(ctx)
		})
		g.Go(func() error {
			return market.RunStream(ctx, deps.Stream.Ticks())
		})
	} else {
		g.Go(func() error {
			return market.RunPoller(ctx, deps.Ticker, time.Duration(a.cfg.Feed.PollIntervalSeconds)*time.Second)
		})
	}

	// Decision engine.
	g.Go(func() error {
		return eng.Run(ctx)
	})

	// Reconciliation against the exchange's view, live mode only.
	if a.cfg.Mode == "live" && a.cfg.Engine.ReconcileSeconds > 0 {
		rec := engine.NewReconciler(
			deps.Client, deps.Ledger, deps.FillStore, deps.Notifier, a.cfg.Engine.Symbols,
			time.Duration(a.cfg.Engine.ReconcileSeconds)*time.Second, a.logger,
		)
		g.Go(func() error {
			return rec.Run(ctx)
		})
	}

	// Periodic operator status summary.
	if a.cfg.Engine.StatusSeconds > 0 && deps.DecisionStore != nil && deps.Notifier != nil {
		status := engine.NewStatusReporter(
			deps.DecisionStore, deps.OrderStore, deps.Ledger, deps.Notifier,
			a.cfg.Engine.Symbols, time.Duration(a.cfg.Engine.StatusSeconds)*time.Second, a.logger,
		)
		g.Go(func() error {
			return status.Run(ctx)
		})
	}

	// Control channel: an operator can publish "halt" to stop the bot
	// without reaching the host.
	if deps.EventBus != nil {
		g.Go(func() error {
			ch, err := deps.EventBus.Subscribe(ctx, "quantbot.control")
			if err != nil {
				a.logger.Warn("control channel unavailable", slog.String("error", err.Error()))
				return nil
			}
			for msg := range ch {
				if strings.TrimSpace(string(msg)) == "halt" {
					return fmt.Errorf("app: halt requested via control channel")
				}
			}
			return nil
		})
	}

	// Prometheus exposition.
	if a.cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger)
		})
	}

	return g.Wait()
}

// riskLimits converts the configuration's float limits to the decimal limits
// the validator consumes.
func riskLimits(rc config.RiskConfig) domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionSize:  decimal.NewFromFloat(rc.MaxPositionSize),
		MaxDailyTrades:   rc.MaxDailyTrades,
		MaxVolatilityPct: decimal.NewFromFloat(rc.MaxVolatilityPct),
		StopLossPct:      decimal.NewFromFloat(rc.StopLossPct),
		TakeProfitPct:    decimal.NewFromFloat(rc.TakeProfitPct),
		AllowFlip:        rc.AllowFlip,
	}
}
