// Package strategy holds the pluggable trade strategies, the registry that
// composes them, and the scheduler that time-gates their evaluation.
package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// Strategy is the contract for trading strategies. Evaluate inspects the
// snapshot for one symbol and returns a signal or nil when the strategy
// declines to trade. Strategies own only their internal counters; they must
// not touch the ledger or the risk validator, so they stay independently
// testable without live state.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, snap domain.MarketSnapshot) (*domain.Signal, error)
}

// Params holds the per-strategy tunables shared by all built-in strategies.
type Params struct {
	Size  decimal.Decimal
	Extra map[string]any
}

// extraFloat reads a float tunable from Params.Extra with a fallback.
func (p Params) extraFloat(key string, def float64) float64 {
	if p.Extra == nil {
		return def
	}
	switch v := p.Extra[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// New constructs a built-in strategy by name.
func New(name string, params Params) (Strategy, error) {
	switch name {
	case "alternator":
		return NewAlternator(params), nil
	case "momentum":
		return NewMomentum(params), nil
	case "mean_reversion":
		return NewMeanReversion(params), nil
	default:
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
}
