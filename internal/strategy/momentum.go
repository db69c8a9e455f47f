package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// Momentum trades in the direction of recent price movement: a BUY when the
// momentum indicator exceeds the threshold, a SELL when it falls below the
// negative threshold. It declines to signal inside the dead band.
type Momentum struct {
	params    Params
	threshold decimal.Decimal // momentum percent needed to fire
}

// NewMomentum creates a Momentum strategy. The "threshold_pct" extra tunable
// defaults to 0.5 (percent).
func NewMomentum(params Params) *Momentum {
	return &Momentum{
		params:    params,
		threshold: decimal.NewFromFloat(params.extraFloat("threshold_pct", 0.5)),
	}
}

// Name returns the strategy identifier.
func (m *Momentum) Name() string { return "momentum" }

// Evaluate emits a directional signal when momentum breaks out of the dead
// band. Missing the momentum indicator is not an error; the strategy simply
// declines.
func (m *Momentum) Evaluate(_ context.Context, snap domain.MarketSnapshot) (*domain.Signal, error) {
	mom, ok := snap.Indicator(domain.IndicatorMomentum)
	if !ok {
		return nil, nil
	}

	var side domain.Side
	switch {
	case mom.GreaterThanOrEqual(m.threshold):
		side = domain.SideBuy
	case mom.LessThanOrEqual(m.threshold.Neg()):
		side = domain.SideSell
	default:
		return nil, nil
	}

	// Confidence grows with the breakout magnitude, capped at 1.
	conf, _ := mom.Abs().Div(m.threshold.Mul(decimal.NewFromInt(2))).Float64()
	if conf > 1 {
		conf = 1
	}

	return &domain.Signal{
		ID:         uuid.New().String(),
		Strategy:   m.Name(),
		Symbol:     snap.Symbol,
		Side:       side,
		Confidence: conf,
		Price:      snap.Price,
		Size:       m.params.Size,
		Indicators: snap.CloneIndicators(),
		Reason:     fmt.Sprintf("momentum %s breached threshold %s", mom.StringFixed(3), m.threshold.StringFixed(3)),
		CreatedAt:  time.Now().UTC(),
	}, nil
}
