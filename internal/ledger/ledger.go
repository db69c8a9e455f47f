// Package ledger holds the authoritative in-memory record of open positions.
// There is exactly one Position per symbol; every read goes through Get and
// the only mutation path is ApplyFill. No alternative representation of a
// position exists anywhere, so callers can never receive an unexpected shape.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// Ledger tracks net positions per symbol. It is safe for concurrent use, but
// callers that need read-validate-write atomicity for a symbol must serialize
// at a higher level (the engine holds a per-symbol lock around validation and
// execution).
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
	applied   map[string]bool // fill order IDs already applied
	allowFlip bool
}

// New creates an empty Ledger. allowFlip controls what an oversized
// opposite-direction fill does: flip into the other direction, or clamp at
// flat.
func New(allowFlip bool) *Ledger {
	return &Ledger{
		positions: make(map[string]domain.Position),
		applied:   make(map[string]bool),
		allowFlip: allowFlip,
	}
}

// Get returns the current position for a symbol. It never fails; symbols
// without a holding return the flat default.
func (l *Ledger) Get(symbol string) domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return domain.FlatPosition(symbol)
	}
	return pos
}

// Snapshot returns a copy of every non-flat position, keyed by symbol.
func (l *Ledger) Snapshot() map[string]domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]domain.Position, len(l.positions))
	for sym, pos := range l.positions {
		if !pos.IsFlat() {
			out[sym] = pos
		}
	}
	return out
}

// ApplyFill is the only mutator. It deterministically computes the new
// position from the old position and the fill, deduplicating by order ID so
// replaying the same fill twice cannot double-mutate the ledger. The
// resulting position size is never negative.
func (l *Ledger) ApplyFill(fill domain.Fill) (domain.Position, error) {
	if fill.Size.Sign() <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: fill %s: size must be positive: %w", fill.OrderID, domain.ErrInvalidOrder)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.applied[fill.OrderID] {
		return l.positions[fill.Symbol], fmt.Errorf("ledger: fill %s: %w", fill.OrderID, domain.ErrDuplicateFill)
	}

	old, ok := l.positions[fill.Symbol]
	if !ok {
		old = domain.FlatPosition(fill.Symbol)
	}

	next := l.apply(old, fill)
	next.UpdatedAt = fill.Timestamp

	l.positions[fill.Symbol] = next
	l.applied[fill.OrderID] = true
	return next, nil
}

// Preview computes the position that would result from applying the fill to
// pos under this ledger's flip policy, without mutating any state or
// recording the order ID.
func (l *Ledger) Preview(pos domain.Position, fill domain.Fill) domain.Position {
	return l.apply(pos, fill)
}

// Replay rebuilds ledger state from a fill journal, applying fills in order.
// Duplicate order IDs are skipped, matching ApplyFill's dedup behavior.
func (l *Ledger) Replay(fills []domain.Fill) error {
	for _, f := range fills {
		if _, err := l.ApplyFill(f); err != nil {
			if errors.Is(err, domain.ErrDuplicateFill) {
				continue
			}
			return fmt.Errorf("ledger: replay: %w", err)
		}
	}
	return nil
}

// apply computes the successor position. Same-direction fills accumulate with
// a size-weighted average entry price. Opposite-direction fills reduce the
// size, clamped at zero; with the flip policy enabled the excess opens a new
// position in the other direction at the fill price.
func (l *Ledger) apply(old domain.Position, fill domain.Fill) domain.Position {
	fillDir := positionSideFor(fill.Side)

	// Opening from flat.
	if old.IsFlat() {
		return domain.Position{
			Symbol:     fill.Symbol,
			Side:       fillDir,
			Size:       fill.Size,
			EntryPrice: fill.Price,
			OpenedAt:   fill.Timestamp,
		}
	}

	// Same direction: accumulate, entry becomes the size-weighted average.
	if old.Side == fillDir {
		newSize := old.Size.Add(fill.Size)
		weighted := old.EntryPrice.Mul(old.Size).Add(fill.Price.Mul(fill.Size)).Div(newSize)
		out := old
		out.Size = newSize
		out.EntryPrice = weighted
		return out
	}

	// Opposite direction: reduce.
	if fill.Size.LessThan(old.Size) {
		out := old
		out.Size = old.Size.Sub(fill.Size)
		return out
	}

	excess := fill.Size.Sub(old.Size)
	if excess.Sign() > 0 && l.allowFlip {
		return domain.Position{
			Symbol:     fill.Symbol,
			Side:       fillDir,
			Size:       excess,
			EntryPrice: fill.Price,
			OpenedAt:   fill.Timestamp,
		}
	}

	// Exact close, or clamp policy: position returns to flat.
	return domain.FlatPosition(fill.Symbol)
}

func positionSideFor(side domain.Side) domain.PositionSide {
	if side == domain.SideBuy {
		return domain.PositionLong
	}
	return domain.PositionShort
}

// TotalExposure returns the sum of |size| * entry price across all open
// positions, for metrics and reconciliation reporting.
func (l *Ledger) TotalExposure() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, pos := range l.positions {
		if !pos.IsFlat() {
			total = total.Add(pos.Size.Mul(pos.EntryPrice))
		}
	}
	return total
}
