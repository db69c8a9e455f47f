package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of the current net holding. Flat is the
// default/absence state; there is exactly one Position per symbol at any time.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionFlat  PositionSide = "FLAT"
)

// Position is the canonical net holding for a symbol. It is owned exclusively
// by the ledger: all reads go through ledger accessors and the only mutation
// path is applying a fill. Size is never negative; direction is carried by
// Side. There is deliberately no map-like or alternative representation of a
// position anywhere in the codebase.
type Position struct {
	Symbol     string
	Side       PositionSide
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

// FlatPosition returns the default position for a symbol with no holding.
func FlatPosition(symbol string) Position {
	return Position{
		Symbol: symbol,
		Side:   PositionFlat,
		Size:   decimal.Zero,
	}
}

// IsFlat reports whether the position holds nothing.
func (p Position) IsFlat() bool {
	return p.Side == PositionFlat || p.Size.IsZero()
}

// Direction maps the holding side to the trade side that grows it, or ""
// when flat.
func (p Position) Direction() Side {
	switch p.Side {
	case PositionLong:
		return SideBuy
	case PositionShort:
		return SideSell
	default:
		return ""
	}
}

// UnrealizedPnLPct returns the percentage move of price relative to the entry
// price, signed so that a favourable move is positive for both long and short
// holdings. Returns zero for flat positions or zero entry price.
func (p Position) UnrealizedPnLPct(price decimal.Decimal) decimal.Decimal {
	if p.IsFlat() || p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	movePct := price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
	if p.Side == PositionShort {
		return movePct.Neg()
	}
	return movePct
}
