// Package executor turns approved signals into orders, simulated or real,
// and applies the resulting fills to the position ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/exchange"
)

// Mode selects how approved signals are executed.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// ApplyFunc records a confirmed fill in the position book and returns the
// resulting position. The engine passes a func that re-acquires the symbol
// lock and re-validates against the ledger's current state before writing,
// so the Executor itself never touches position state and holds no locks
// across its network calls.
type ApplyFunc func(fill domain.Fill) (domain.Position, error)

// Executor issues orders for approved signals. It owns order placement and
// journaling only; position bookkeeping happens through the ApplyFunc the
// caller supplies per execution.
type Executor struct {
	mode        Mode
	client      exchange.Client   // nil in paper mode
	orders      domain.OrderStore // optional journal
	fills       domain.FillStore  // optional journal
	slippageBps int64
	timeout     time.Duration
	logger      *slog.Logger
}

// Config holds Executor construction parameters.
type Config struct {
	Mode         Mode
	SlippageBps  int
	OrderTimeout time.Duration
}

// New creates an Executor. client may be nil for paper mode; orders and
// fills journals may be nil to run memory-only.
func New(cfg Config, client exchange.Client, orders domain.OrderStore, fills domain.FillStore, logger *slog.Logger) *Executor {
	timeout := cfg.OrderTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		mode:        cfg.Mode,
		client:      client,
		orders:      orders,
		fills:       fills,
		slippageBps: int64(cfg.SlippageBps),
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "executor")),
	}
}

// Execute turns an approved decision into an order and, on a confirmed fill,
// records it through apply. Failures and timeouts never reach apply, so the
// position book stays untouched. The order ID is a fresh UUID, never reused.
func (e *Executor) Execute(ctx context.Context, decision domain.RiskDecision, apply ApplyFunc) domain.ExecutionResult {
	sig := decision.Signal
	size := decision.AdjustedSize
	if size.IsZero() {
		size = sig.Size
	}

	order := domain.Order{
		ID:        uuid.New().String(),
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Size:      size,
		Price:     sig.Price,
		Status:    domain.OrderStatusCreated,
		Strategy:  sig.Strategy,
		SignalID:  sig.ID,
		CreatedAt: time.Now().UTC(),
	}
	e.journalOrder(ctx, order)

	var result domain.ExecutionResult
	if e.mode == ModeLive {
		result = e.executeLive(ctx, &order, apply)
	} else {
		result = e.executePaper(ctx, &order, apply)
	}

	e.journalStatus(ctx, order)
	return result
}

// executePaper synthesizes a fill at the signal's reference price adjusted by
// the configured slippage, then records it through apply.
func (e *Executor) executePaper(ctx context.Context, order *domain.Order, apply ApplyFunc) domain.ExecutionResult {
	now := time.Now().UTC()
	if err := order.Transition(domain.OrderStatusSubmitted, now); err != nil {
		return e.failed(order, fmt.Sprintf("submit: %v", err))
	}

	fillPrice := applySlippage(order.Price, order.Side, e.slippageBps)
	if err := order.Transition(domain.OrderStatusFilled, now); err != nil {
		return e.failed(order, fmt.Sprintf("fill: %v", err))
	}

	fill := domain.Fill{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Size:      order.Size,
		Price:     fillPrice,
		Timestamp: now,
	}
	pos, err := apply(fill)
	if err != nil {
		// The applier refusing a synthetic fill means the position moved
		// between approval and now; the order fails and no fill is recorded.
		e.logger.Error("ledger apply failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return e.failed(order, fmt.Sprintf("ledger: %v", err))
	}
	e.journalFill(ctx, fill)

	e.logger.Info("paper order filled",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("size", order.Size.String()),
		slog.String("fill_price", fillPrice.String()),
		slog.String("position_side", string(pos.Side)),
		slog.String("position_size", pos.Size.String()),
	)

	return domain.ExecutionResult{
		OrderID:  order.ID,
		SignalID: order.SignalID,
		Strategy: order.Strategy,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Size:     order.Size,
		Price:    fillPrice,
		Status:   domain.OrderStatusFilled,
		FilledAt: now,
	}
}

// executeLive delegates to the exchange client. The fill reaches apply only
// after the exchange confirms it; errors and timeouts surface as FAILED with
// the position book left untouched. No automatic retry: retrying a market
// order risks duplicate execution, so retry is left to a future signal cycle.
func (e *Executor) executeLive(ctx context.Context, order *domain.Order, apply ApplyFunc) domain.ExecutionResult {
	if e.client == nil {
		return e.failed(order, "no exchange client configured")
	}

	now := time.Now().UTC()
	if err := order.Transition(domain.OrderStatusSubmitted, now); err != nil {
		return e.failed(order, fmt.Sprintf("submit: %v", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ack, err := e.client.PlaceOrder(callCtx, exchange.OrderRequest{
		Symbol: order.Symbol,
		Side:   order.Side,
		Size:   order.Size,
		Price:  order.Price,
	})
	if err != nil {
		detail := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			detail = domain.ErrOrderTimeout.Error()
		}
		e.logger.Error("live order placement failed",
			slog.String("order_id", order.ID),
			slog.String("symbol", order.Symbol),
			slog.String("error", detail),
		)
		return e.failed(order, detail)
	}
	order.ExchangeID = ack.ExchangeOrderID

	switch ack.Status {
	case domain.OrderStatusFilled:
		// fall through to the ledger mutation below
	case domain.OrderStatusCancelled:
		_ = order.Transition(domain.OrderStatusCancelled, time.Now().UTC())
		return domain.ExecutionResult{
			OrderID:  order.ID,
			SignalID: order.SignalID,
			Strategy: order.Strategy,
			Symbol:   order.Symbol,
			Side:     order.Side,
			Size:     order.Size,
			Status:   domain.OrderStatusCancelled,
			Detail:   "cancelled by exchange",
		}
	default:
		// Not confirmed within this call; treat as failed and leave the
		// ledger alone. Reconciliation will surface any late fill.
		return e.failed(order, fmt.Sprintf("unconfirmed exchange status %q", ack.Status))
	}

	filledAt := ack.FilledAt
	if filledAt.IsZero() {
		filledAt = time.Now().UTC()
	}
	if err := order.Transition(domain.OrderStatusFilled, filledAt); err != nil {
		return e.failed(order, fmt.Sprintf("fill: %v", err))
	}

	fillSize := ack.FilledSize
	if fillSize.IsZero() {
		fillSize = order.Size
	}
	fillPrice := ack.FilledPrice
	if fillPrice.IsZero() {
		fillPrice = order.Price
	}

	fill := domain.Fill{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Size:      fillSize,
		Price:     fillPrice,
		Timestamp: filledAt,
	}
	pos, err := apply(fill)
	if err != nil {
		e.logger.Error("ledger apply failed after live fill",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return e.failed(order, fmt.Sprintf("ledger: %v", err))
	}
	e.journalFill(ctx, fill)

	e.logger.Info("live order filled",
		slog.String("order_id", order.ID),
		slog.String("exchange_id", order.ExchangeID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("size", fillSize.String()),
		slog.String("fill_price", fillPrice.String()),
		slog.String("position_size", pos.Size.String()),
	)

	return domain.ExecutionResult{
		OrderID:  order.ID,
		SignalID: order.SignalID,
		Strategy: order.Strategy,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Size:     fillSize,
		Price:    fillPrice,
		Status:   domain.OrderStatusFilled,
		FilledAt: filledAt,
	}
}

// failed marks the order FAILED (ignoring state machine errors from already
// terminal orders) and builds the matching result.
func (e *Executor) failed(order *domain.Order, detail string) domain.ExecutionResult {
	if !order.Status.Terminal() {
		_ = order.Transition(domain.OrderStatusFailed, time.Now().UTC())
	}
	return domain.ExecutionResult{
		OrderID:  order.ID,
		SignalID: order.SignalID,
		Strategy: order.Strategy,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Size:     order.Size,
		Status:   domain.OrderStatusFailed,
		Detail:   detail,
	}
}

// applySlippage worsens the reference price by bps in the direction that
// costs the taker: buys pay more, sells receive less.
func applySlippage(price decimal.Decimal, side domain.Side, bps int64) decimal.Decimal {
	if bps == 0 {
		return price
	}
	adj := price.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10_000))
	if side == domain.SideBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

// ---------------------------------------------------------------------------
// Journaling. Journal failures are logged but never affect execution.
// ---------------------------------------------------------------------------

func (e *Executor) journalOrder(ctx context.Context, order domain.Order) {
	if e.orders == nil {
		return
	}
	if err := e.orders.Create(ctx, order); err != nil {
		e.logger.Warn("order journal failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) journalStatus(ctx context.Context, order domain.Order) {
	if e.orders == nil {
		return
	}
	if err := e.orders.UpdateStatus(ctx, order.ID, order.Status); err != nil {
		e.logger.Warn("order status journal failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) journalFill(ctx context.Context, fill domain.Fill) {
	if e.fills == nil {
		return
	}
	if err := e.fills.Insert(ctx, fill); err != nil {
		e.logger.Warn("fill journal failed",
			slog.String("order_id", fill.OrderID),
			slog.String("error", err.Error()),
		)
	}
}
