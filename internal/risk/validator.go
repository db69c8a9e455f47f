// Package risk validates candidate signals against position limits,
// volatility, and daily trade caps before they become orders.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// PositionReader is the ledger's typed accessor. The validator reads
// positions only through this interface; there is no generic key-lookup into
// position state anywhere.
type PositionReader interface {
	Get(symbol string) domain.Position
}

// Validator is the stateful gate between signals and orders. Every signal
// yields exactly one RiskDecision. The validator itself holds no position
// state; callers must serialize Validate and the subsequent ledger write per
// symbol so two concurrent approvals cannot double-spend the size budget.
type Validator struct {
	positions PositionReader
	counter   *DailyCounter
	logger    *slog.Logger
}

// NewValidator creates a Validator reading positions through the given
// accessor.
func NewValidator(positions PositionReader, counter *DailyCounter, logger *slog.Logger) *Validator {
	return &Validator{
		positions: positions,
		counter:   counter,
		logger:    logger.With(slog.String("component", "risk_validator")),
	}
}

// Validate runs the ordered risk checks, short-circuiting on the first
// failure: daily trade cap, volatility, then position sizing through the
// ledger accessor. The daily budget is consumed atomically on approval, as
// the final step, so a burst of concurrent signals cannot all borrow the
// same remaining budget and rejected signals never burn it. Closing-only
// signals strictly reduce risk and bypass the cap entirely: a stop-loss exit
// must never be blocked because the day's budget is spent.
func (v *Validator) Validate(sig domain.Signal, limits domain.RiskLimits, now time.Time) domain.RiskDecision {
	if reason, detail, bad := v.checkShape(sig); bad {
		return v.reject(sig, reason, detail, now)
	}

	// Check 1: daily trade cap. This early read keeps the check order (an
	// exhausted budget is reported before volatility or sizing problems);
	// the atomic consume below closes the check-then-act window.
	if !sig.ClosingOnly {
		count := v.counter.Count(sig.Strategy, now)
		if count >= limits.MaxDailyTrades {
			return v.reject(sig, domain.RejectDailyLimit,
				fmt.Sprintf("daily trades %d/%d", count, limits.MaxDailyTrades), now)
		}
	}

	// Check 2: recent volatility. A missing indicator does not block the
	// trade; the feed may not have a full lookback window yet.
	if vol, ok := sig.Indicators[domain.IndicatorVolatility]; ok {
		if vol.GreaterThan(limits.MaxVolatilityPct) {
			return v.reject(sig, domain.RejectVolatility,
				fmt.Sprintf("volatility %s%% exceeds max %s%%", vol.StringFixed(2), limits.MaxVolatilityPct.StringFixed(2)), now)
		}
	}

	// Check 3: position sizing, reading the current position only through
	// the ledger's typed accessor.
	pos := v.positions.Get(sig.Symbol)
	adjusted, reason, detail := SizingFor(sig.Side, sig.Size, sig.ClosingOnly, pos, limits)
	if reason != "" {
		return v.reject(sig, reason, detail, now)
	}

	// Consume the daily budget atomically. A concurrent approval may have
	// spent the last unit since the early read; that signal is the one over
	// the cap, however the goroutines interleaved.
	if !sig.ClosingOnly && !v.counter.TryConsume(sig.Strategy, now, limits.MaxDailyTrades) {
		return v.reject(sig, domain.RejectDailyLimit,
			fmt.Sprintf("daily trades %d/%d", limits.MaxDailyTrades, limits.MaxDailyTrades), now)
	}

	return domain.RiskDecision{
		Signal:       sig,
		Outcome:      domain.RiskApproved,
		DecidedAt:    now,
		AdjustedSize: adjusted,
	}
}

// CheckExit inspects an open position's unrealized P/L against the stop-loss
// and take-profit bounds and, when crossed, returns a closing-only signal
// that overrides strategy output. Returns nil when no exit is forced.
func (v *Validator) CheckExit(symbol string, price decimal.Decimal, limits domain.RiskLimits, now time.Time) *domain.Signal {
	pos := v.positions.Get(symbol)
	if pos.IsFlat() || price.IsZero() {
		return nil
	}

	pnlPct := pos.UnrealizedPnLPct(price)
	var reason string
	switch {
	case limits.StopLossPct.Sign() > 0 && pnlPct.LessThanOrEqual(limits.StopLossPct.Neg()):
		reason = fmt.Sprintf("stop loss: unrealized pnl %s%%", pnlPct.StringFixed(2))
	case limits.TakeProfitPct.Sign() > 0 && pnlPct.GreaterThanOrEqual(limits.TakeProfitPct):
		reason = fmt.Sprintf("take profit: unrealized pnl %s%%", pnlPct.StringFixed(2))
	default:
		return nil
	}

	v.logger.Info("forced exit signal",
		slog.String("symbol", symbol),
		slog.String("position_side", string(pos.Side)),
		slog.String("pnl_pct", pnlPct.StringFixed(2)),
	)

	return &domain.Signal{
		ID:          uuid.New().String(),
		Strategy:    "risk_exit",
		Symbol:      symbol,
		Side:        pos.Direction().Opposite(),
		Confidence:  1.0,
		Price:       price,
		Size:        pos.Size,
		Reason:      reason,
		CreatedAt:   now,
		ClosingOnly: true,
	}
}

// checkShape rejects structurally invalid signals with INVALID_STATE.
func (v *Validator) checkShape(sig domain.Signal) (domain.RejectReason, string, bool) {
	switch {
	case sig.Symbol == "":
		return domain.RejectInvalidState, "empty symbol", true
	case sig.Side != domain.SideBuy && sig.Side != domain.SideSell:
		return domain.RejectInvalidState, fmt.Sprintf("unknown side %q", sig.Side), true
	case sig.Size.Sign() <= 0:
		return domain.RejectInvalidState, "size must be positive", true
	case sig.Price.Sign() <= 0:
		return domain.RejectInvalidState, "price must be positive", true
	case sig.Confidence < 0 || sig.Confidence > 1:
		return domain.RejectInvalidState, fmt.Sprintf("confidence %.3f out of [0,1]", sig.Confidence), true
	}
	return "", "", false
}

// SizingFor enforces the position size limit for an order of the given side
// and size against pos. It returns the size allowed to execute (possibly
// clamped under the no-flip policy) or a rejection reason. The engine calls
// it again at the moment a fill is actually applied, so the ledger write is
// re-validated against current state rather than the state at approval time.
func SizingFor(side domain.Side, size decimal.Decimal, closingOnly bool, pos domain.Position, limits domain.RiskLimits) (decimal.Decimal, domain.RejectReason, string) {
	growing := pos.IsFlat() || pos.Direction() == side

	if growing {
		// Opening a fresh short requires the side-reversal policy.
		if pos.IsFlat() && side == domain.SideSell && !limits.AllowFlip {
			return decimal.Zero, domain.RejectPositionSize, "fresh short requires allow_flip"
		}
		if closingOnly {
			return decimal.Zero, domain.RejectInvalidState, "closing-only signal would grow position"
		}
		resulting := pos.Size.Add(size)
		if resulting.GreaterThan(limits.MaxPositionSize) {
			return decimal.Zero, domain.RejectPositionSize,
				fmt.Sprintf("resulting size %s exceeds max %s", resulting.String(), limits.MaxPositionSize.String())
		}
		return size, "", ""
	}

	// Reducing the open position.
	if size.LessThanOrEqual(pos.Size) {
		return size, "", ""
	}

	// Oversized reduction: flip the excess or clamp, per configuration.
	if limits.AllowFlip {
		excess := size.Sub(pos.Size)
		if excess.GreaterThan(limits.MaxPositionSize) {
			return decimal.Zero, domain.RejectPositionSize,
				fmt.Sprintf("flipped size %s exceeds max %s", excess.String(), limits.MaxPositionSize.String())
		}
		return size, "", ""
	}
	return pos.Size, "", "" // clamp: reduce by at most the open size
}

// reject builds a REJECTED decision and logs it. Rejections are expected,
// non-fatal events.
func (v *Validator) reject(sig domain.Signal, reason domain.RejectReason, detail string, now time.Time) domain.RiskDecision {
	v.logger.Warn("signal rejected",
		slog.String("signal_id", sig.ID),
		slog.String("strategy", sig.Strategy),
		slog.String("symbol", sig.Symbol),
		slog.String("reason", string(reason)),
		slog.String("detail", detail),
	)
	return domain.RiskDecision{
		Signal:    sig,
		Outcome:   domain.RiskRejected,
		Reason:    reason,
		Detail:    detail,
		DecidedAt: now,
	}
}
