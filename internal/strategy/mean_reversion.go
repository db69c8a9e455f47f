package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// MeanReversion fades deviations from the moving average: a BUY when price
// drops far enough below the SMA, a SELL when it stretches above it.
type MeanReversion struct {
	params       Params
	deviationPct decimal.Decimal
}

// NewMeanReversion creates a MeanReversion strategy. The "deviation_pct"
// extra tunable defaults to 1.0 (percent from the SMA).
func NewMeanReversion(params Params) *MeanReversion {
	return &MeanReversion{
		params:       params,
		deviationPct: decimal.NewFromFloat(params.extraFloat("deviation_pct", 1.0)),
	}
}

// Name returns the strategy identifier.
func (m *MeanReversion) Name() string { return "mean_reversion" }

// Evaluate emits a contrarian signal when price deviates from the SMA by more
// than the configured percentage.
func (m *MeanReversion) Evaluate(_ context.Context, snap domain.MarketSnapshot) (*domain.Signal, error) {
	sma, ok := snap.Indicator(domain.IndicatorSMA)
	if !ok || sma.IsZero() {
		return nil, nil
	}

	devPct := snap.Price.Sub(sma).Div(sma).Mul(decimal.NewFromInt(100))

	var side domain.Side
	switch {
	case devPct.LessThanOrEqual(m.deviationPct.Neg()):
		side = domain.SideBuy
	case devPct.GreaterThanOrEqual(m.deviationPct):
		side = domain.SideSell
	default:
		return nil, nil
	}

	conf, _ := devPct.Abs().Div(m.deviationPct.Mul(decimal.NewFromInt(2))).Float64()
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
		Reason:     fmt.Sprintf("price deviates %s%% from sma", devPct.StringFixed(2)),
		CreatedAt:  time.Now().UTC(),
	}, nil
}
