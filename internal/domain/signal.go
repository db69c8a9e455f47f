package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates the direction a signal wants to trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other trading direction.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Signal is a strategy's proposed trade for a symbol at a point in time. It
// is created once by a strategy, never mutated afterwards, and consumed
// exactly once by the risk validator.
type Signal struct {
	ID         string // UUID, used for dedup and journaling
	Strategy   string // strategy name that produced the signal
	Symbol     string
	Side       Side
	Confidence float64 // in [0,1]
	Price      decimal.Decimal
	Size       decimal.Decimal
	Indicators map[string]decimal.Decimal // snapshot of indicators at creation
	Reason     string
	CreatedAt  time.Time

	// ClosingOnly marks signals produced by the stop-loss/take-profit
	// override. They may only reduce or close the existing position.
	ClosingOnly bool
}

// Notional returns price * size.
func (s Signal) Notional() decimal.Decimal {
	return s.Price.Mul(s.Size)
}
