package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskOutcome is the validator's verdict on a signal.
type RiskOutcome string

const (
	RiskApproved RiskOutcome = "APPROVED"
	RiskRejected RiskOutcome = "REJECTED"
)

// RejectReason categorises why a signal was rejected.
type RejectReason string

const (
	RejectDailyLimit   RejectReason = "DAILY_LIMIT"
	RejectVolatility   RejectReason = "VOLATILITY"
	RejectPositionSize RejectReason = "POSITION_SIZE"
	RejectInvalidState RejectReason = "INVALID_STATE"
)

// RiskLimits is the immutable per-strategy (or global) risk configuration.
type RiskLimits struct {
	MaxPositionSize  decimal.Decimal
	MaxDailyTrades   int
	MaxVolatilityPct decimal.Decimal
	StopLossPct      decimal.Decimal
	TakeProfitPct    decimal.Decimal

	// AllowFlip controls what happens when an opposite-direction signal
	// exceeds the open position size: when true the excess opens a position
	// in the other direction, when false the fill is clamped to the open
	// size (and fresh shorts are rejected).
	AllowFlip bool
}

// RiskDecision is produced exactly once per signal and forwarded to sinks
// regardless of outcome. It is immutable after creation.
type RiskDecision struct {
	Signal    Signal
	Outcome   RiskOutcome
	Reason    RejectReason // empty when approved
	Detail    string
	DecidedAt time.Time

	// AdjustedSize is the size the validator allows to execute. It equals
	// Signal.Size unless the clamp policy reduced an oversized
	// opposite-direction signal.
	AdjustedSize decimal.Decimal
}

// Approved reports whether the signal may proceed to execution.
func (d RiskDecision) Approved() bool {
	return d.Outcome == RiskApproved
}
