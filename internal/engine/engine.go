// Package engine drives the signal-to-order pipeline: a periodic tick
// evaluates every (strategy, symbol) pair through the scheduler gate,
// validates candidate signals against risk limits, and hands approvals to
// the executor.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/executor"
	"github.com/alanyoungcy/quantbot/internal/feed"
	"github.com/alanyoungcy/quantbot/internal/ledger"
	"github.com/alanyoungcy/quantbot/internal/metrics"
	"github.com/alanyoungcy/quantbot/internal/notify"
	"github.com/alanyoungcy/quantbot/internal/risk"
	"github.com/alanyoungcy/quantbot/internal/strategy"
)

// LimitsFunc resolves the effective risk limits for a strategy name.
type LimitsFunc func(strategyName string) domain.RiskLimits

// Engine owns the driving loop. Symbols are evaluated concurrently since
// they are independent; the read-validate-reserve critical section for one
// symbol runs under that symbol's mutex, so two near-simultaneous signals
// can never both be approved against the same stale position. The mutex is
// released before any network call: approved size is held as a reservation
// in the Reserved overlay while the order is in flight, and the fill is
// re-validated under a re-acquired lock at the moment the ledger is written.
type Engine struct {
	symbols      []string
	registry     *strategy.Registry
	scheduler    *strategy.Scheduler
	validator    *risk.Validator
	exec         *executor.Executor
	market       *feed.Feed
	book         *ledger.Ledger
	reserved     *ledger.Reserved
	limitsFor    LimitsFunc
	globalLimits domain.RiskLimits
	notifier     *notify.Notifier
	decisions    domain.DecisionStore // optional journal
	bus          domain.EventBus      // optional
	tick         time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config bundles the Engine's collaborators. Reserved must be the same
// overlay the Validator reads positions through, so reservations made here
// are visible to validation.
type Config struct {
	Symbols      []string
	Registry     *strategy.Registry
	Scheduler    *strategy.Scheduler
	Validator    *risk.Validator
	Executor     *executor.Executor
	Feed         *feed.Feed
	Ledger       *ledger.Ledger
	Reserved     *ledger.Reserved
	LimitsFor    LimitsFunc
	GlobalLimits domain.RiskLimits
	Notifier     *notify.Notifier
	Decisions    domain.DecisionStore
	Bus          domain.EventBus
	TickInterval time.Duration
}

// New creates an Engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	reserved := cfg.Reserved
	if reserved == nil {
		reserved = ledger.NewReserved(cfg.Ledger)
	}
	return &Engine{
		symbols:      cfg.Symbols,
		registry:     cfg.Registry,
		scheduler:    cfg.Scheduler,
		validator:    cfg.Validator,
		exec:         cfg.Executor,
		market:       cfg.Feed,
		book:         cfg.Ledger,
		reserved:     reserved,
		limitsFor:    cfg.LimitsFor,
		globalLimits: cfg.GlobalLimits,
		notifier:     cfg.Notifier,
		decisions:    cfg.Decisions,
		bus:          cfg.Bus,
		tick:         cfg.TickInterval,
		logger:       logger.With(slog.String("component", "engine")),
		now:          func() time.Time { return time.Now().UTC() },
		locks:        make(map[string]*sync.Mutex),
	}
}

// SetClock replaces the engine's clock, for deterministic tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run ticks until the context is cancelled, evaluating all symbols in
// parallel on each tick.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.Int("symbols", len(e.symbols)),
		slog.Duration("tick", e.tick),
	)
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		e.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick evaluates every symbol once. Symbol evaluations run concurrently; a
// strategy error or panic in one symbol never blocks the others.
func (e *Engine) Tick(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range e.symbols {
		sym := sym
		g.Go(func() error {
			e.evaluateSymbol(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()
}

// evaluateSymbol runs one tick's worth of work for a symbol: the forced-exit
// check, then every registered strategy through the scheduler gate. Signals
// are processed in order, each through its own lock-scoped critical section.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string) {
	snap, ok := e.market.Latest(symbol)
	if !ok {
		e.logger.Debug("no snapshot yet", slog.String("symbol", symbol))
		return
	}
	now := e.now()

	// Stop-loss/take-profit override: a crossed bound forces a closing-only
	// signal regardless of strategy output.
	if forced := e.validator.CheckExit(symbol, snap.Price, e.globalLimits, now); forced != nil {
		e.process(ctx, *forced, e.globalLimits)
	}

	for _, strat := range e.registry.StrategiesFor(symbol) {
		if !e.scheduler.ShouldEvaluate(strat.Name(), symbol, now) {
			continue
		}

		sig, err := evaluate(ctx, strat, snap)
		if err != nil {
			// Strategy failures are isolated: one broken strategy must not
			// block the others or the loop.
			e.logger.Warn("strategy evaluation failed",
				slog.String("strategy", strat.Name()),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if sig == nil {
			// Declined while eligible: the gate stays open so the trading
			// window is not silently skipped.
			continue
		}

		e.scheduler.MarkFired(strat.Name(), symbol, now)
		e.process(ctx, *sig, e.limitsFor(strat.Name()))
	}
}

// evaluate calls the strategy and converts a panic into an error, so a
// defective strategy cannot take down the process.
func evaluate(ctx context.Context, strat strategy.Strategy, snap domain.MarketSnapshot) (sig *domain.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("engine: strategy panic: %v", r)
		}
	}()
	return strat.Evaluate(ctx, snap)
}

// ProcessSignal validates and executes one signal. It is the entry point for
// signals injected outside the tick loop and is what the concurrency
// guarantees are stated against: for a given symbol, decisions happen
// strictly in the order the per-symbol lock is acquired, and approved size
// stays reserved until its order lands or fails.
func (e *Engine) ProcessSignal(ctx context.Context, sig domain.Signal, limits domain.RiskLimits) domain.RiskDecision {
	return e.process(ctx, sig, limits)
}

// sinkEvent is a pending notification/journal/bus emission gathered during
// processing and flushed once no lock is held.
type sinkEvent struct {
	kind     string
	title    string
	message  string
	decision *domain.RiskDecision
	payload  any
}

// process runs one signal through validation, execution, and the sinks. The
// symbol lock scopes only the in-memory read-validate-reserve step and the
// fill application; order placement and sink I/O run with no lock held.
func (e *Engine) process(ctx context.Context, sig domain.Signal, limits domain.RiskLimits) domain.RiskDecision {
	metrics.SignalsGenerated.WithLabelValues(sig.Strategy, sig.Symbol, string(sig.Side)).Inc()

	events := []sinkEvent{{
		kind:  notify.EventSignal,
		title: fmt.Sprintf("Signal %s %s", sig.Side, sig.Symbol),
		message: fmt.Sprintf("strategy=%s size=%s price=%s confidence=%.2f reason=%s",
			sig.Strategy, sig.Size.String(), sig.Price.String(), sig.Confidence, sig.Reason),
	}}

	// Critical section: validate against current state and reserve the
	// approved size before anything can block.
	lock := e.lockFor(sig.Symbol)
	lock.Lock()
	now := e.now()
	decision := e.validator.Validate(sig, limits, now)
	if decision.Approved() {
		e.reserved.Reserve(sig.ID, domain.Fill{
			OrderID:   sig.ID,
			Symbol:    sig.Symbol,
			Side:      sig.Side,
			Size:      approvedSize(decision),
			Price:     sig.Price,
			Timestamp: now,
		})
	}
	lock.Unlock()

	if !sig.CreatedAt.IsZero() {
		metrics.DecisionLatency.Observe(float64(now.Sub(sig.CreatedAt).Microseconds()) / 1000.0)
	}
	events = append(events, sinkEvent{decision: &decision, payload: decisionEvent(decision)})

	if !decision.Approved() {
		metrics.OrdersRejected.WithLabelValues(string(decision.Reason)).Inc()
		events = append(events, sinkEvent{
			kind:  notify.EventOrderRejected,
			title: fmt.Sprintf("Rejected %s %s", sig.Side, sig.Symbol),
			message: fmt.Sprintf("strategy=%s reason=%s detail=%s",
				sig.Strategy, decision.Reason, decision.Detail),
		})
		e.emit(ctx, events)
		return decision
	}

	// Order placement (network I/O in live mode) runs with no lock held; the
	// reservation stands in for the position delta while the order is in
	// flight. The applier re-acquires the lock for the ledger write.
	result := e.exec.Execute(ctx, decision, e.applier(sig, limits, lock))

	// Failed, cancelled, or timed-out orders never reach the applier, so the
	// reservation must be dropped here. A no-op when the fill landed.
	e.reserved.Release(sig.Symbol, sig.ID)

	events = append(events, sinkEvent{payload: executionEvent(result)})

	if result.Filled() {
		metrics.OrdersFilled.WithLabelValues(result.Symbol, string(result.Side)).Inc()
		e.updatePositionGauge(result.Symbol)
		events = append(events, sinkEvent{
			kind:  notify.EventOrderFilled,
			title: fmt.Sprintf("Filled %s %s", result.Side, result.Symbol),
			message: fmt.Sprintf("order=%s size=%s price=%s strategy=%s",
				result.OrderID, result.Size.String(), result.Price.String(), result.Strategy),
		})
	} else {
		metrics.ExecutionFailures.WithLabelValues(result.Symbol, string(result.Status)).Inc()
		events = append(events, sinkEvent{
			kind:  notify.EventOrderRejected,
			title: fmt.Sprintf("Execution failed %s %s", result.Side, result.Symbol),
			message: fmt.Sprintf("order=%s status=%s detail=%s",
				result.OrderID, result.Status, result.Detail),
		})
	}

	e.emit(ctx, events)
	return decision
}

// applier builds the fill-application callback for one signal: re-acquire
// the symbol lock, swap the reservation for the real fill, and re-validate
// sizing against the ledger's state at the moment of the actual mutation,
// clamping if a concurrent fill changed the position in the meantime.
func (e *Engine) applier(sig domain.Signal, limits domain.RiskLimits, lock *sync.Mutex) executor.ApplyFunc {
	return func(fill domain.Fill) (domain.Position, error) {
		lock.Lock()
		defer lock.Unlock()

		e.reserved.Release(sig.Symbol, sig.ID)

		pos := e.book.Get(fill.Symbol)
		allowed, reason, detail := risk.SizingFor(fill.Side, fill.Size, sig.ClosingOnly, pos, limits)
		if reason != "" {
			return domain.Position{}, fmt.Errorf("engine: fill %s failed revalidation: %s: %s", fill.OrderID, reason, detail)
		}
		if allowed.LessThan(fill.Size) {
			fill.Size = allowed
		}
		return e.book.ApplyFill(fill)
	}
}

// approvedSize is the size that will actually execute for a decision.
func approvedSize(d domain.RiskDecision) decimal.Decimal {
	if !d.AdjustedSize.IsZero() {
		return d.AdjustedSize
	}
	return d.Signal.Size
}

func (e *Engine) updatePositionGauge(symbol string) {
	pos := e.book.Get(symbol)
	size, _ := pos.Size.Float64()
	metrics.PositionSize.WithLabelValues(symbol, string(pos.Side)).Set(size)
}

// emit flushes sink events outside any symbol lock. Sink failures are logged
// but never affect trading.
func (e *Engine) emit(ctx context.Context, events []sinkEvent) {
	for _, ev := range events {
		if ev.decision != nil && e.decisions != nil {
			if err := e.decisions.Insert(ctx, *ev.decision); err != nil {
				e.logger.Warn("decision journal failed",
					slog.String("signal_id", ev.decision.Signal.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if ev.payload != nil && e.bus != nil {
			if data, err := json.Marshal(ev.payload); err == nil {
				if err := e.bus.Publish(ctx, "quantbot.events", data); err != nil {
					e.logger.Debug("event bus publish failed", slog.String("error", err.Error()))
				}
			}
		}
		if ev.kind != "" && e.notifier != nil {
			if err := e.notifier.Notify(ctx, ev.kind, ev.title, ev.message); err != nil {
				e.logger.Warn("notification failed",
					slog.String("kind", ev.kind),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (e *Engine) lockFor(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[symbol] = lock
	}
	return lock
}

// decisionEvent is the JSON shape published to the event bus per decision.
func decisionEvent(d domain.RiskDecision) map[string]any {
	return map[string]any{
		"event":      "risk_decision",
		"signal_id":  d.Signal.ID,
		"strategy":   d.Signal.Strategy,
		"symbol":     d.Signal.Symbol,
		"side":       d.Signal.Side,
		"outcome":    d.Outcome,
		"reason":     d.Reason,
		"detail":     d.Detail,
		"decided_at": d.DecidedAt.Format(time.RFC3339Nano),
	}
}

// executionEvent is the JSON shape published to the event bus per execution.
func executionEvent(r domain.ExecutionResult) map[string]any {
	return map[string]any{
		"event":    "execution",
		"order_id": r.OrderID,
		"symbol":   r.Symbol,
		"side":     r.Side,
		"size":     r.Size.String(),
		"price":    r.Price.String(),
		"status":   r.Status,
		"detail":   r.Detail,
	}
}
