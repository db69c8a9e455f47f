// Package exchange provides the client capability the execution engine and
// market data feed consume: order placement, position/balance queries, and
// market data transport against a Binance-style spot API.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// OrderRequest is the order the bot asks the exchange to place. Orders are
// market orders; the price is carried for journaling and slippage reporting
// only.
type OrderRequest struct {
	Symbol string
	Side   domain.Side
	Size   decimal.Decimal
	Price  decimal.Decimal
}

// OrderAck is the exchange's response to an order placement.
type OrderAck struct {
	ExchangeOrderID string
	Status          domain.OrderStatus
	FilledSize      decimal.Decimal
	FilledPrice     decimal.Decimal
	FilledAt        time.Time
}

// ReportedPosition is the position as the exchange reports it, used only for
// periodic reconciliation against the ledger, never as the primary source of
// truth.
type ReportedPosition struct {
	Symbol     string
	Side       domain.PositionSide
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
}

// Balance is one asset balance on the exchange account.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Tick is a single market data observation for a symbol.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Timestamp time.Time
}

// Client is the exchange capability consumed by the executor and the
// reconciler.
type Client interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	FetchPosition(ctx context.Context, symbol string) (ReportedPosition, error)
	FetchBalances(ctx context.Context) ([]Balance, error)
}

// TickerSource is the pull-based market data capability consumed by the feed.
type TickerSource interface {
	FetchTicker(ctx context.Context, symbol string) (Tick, error)
}
