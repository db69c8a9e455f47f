package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

func snapshot(symbol string, price float64, indicators map[string]float64) domain.MarketSnapshot {
	snap := domain.MarketSnapshot{
		Symbol:     symbol,
		Price:      decimal.NewFromFloat(price),
		Indicators: make(map[string]decimal.Decimal, len(indicators)),
	}
	for k, v := range indicators {
		snap.Indicators[k] = decimal.NewFromFloat(v)
	}
	return snap
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New("scalper", Params{})
	require.Error(t, err)
}

func TestAlternatorAlternatesPerSymbol(t *testing.T) {
	a := NewAlternator(Params{Size: decimal.NewFromFloat(0.1)})
	ctx := context.Background()

	first, err := a.Evaluate(ctx, snapshot("BTCUSDT", 50000, nil))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.SideBuy, first.Side)
	assert.Equal(t, 1.0, first.Confidence)
	assert.True(t, first.Size.Equal(decimal.NewFromFloat(0.1)))

	second, err := a.Evaluate(ctx, snapshot("BTCUSDT", 50100, nil))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, domain.SideSell, second.Side)
	assert.NotEqual(t, first.ID, second.ID)

	// A different symbol has its own counter and starts with a BUY.
	other, err := a.Evaluate(ctx, snapshot("ETHUSDT", 3000, nil))
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, domain.SideBuy, other.Side)
}

func TestMomentumDeadBandAndDirection(t *testing.T) {
	m := NewMomentum(Params{
		Size:  decimal.NewFromFloat(0.2),
		Extra: map[string]any{"threshold_pct": 0.5},
	})
	ctx := context.Background()

	// Inside the dead band: declines without error.
	sig, err := m.Evaluate(ctx, snapshot("BTCUSDT", 50000, map[string]float64{
		domain.IndicatorMomentum: 0.2,
	}))
	require.NoError(t, err)
	assert.Nil(t, sig)

	// Missing indicator also declines.
	sig, err = m.Evaluate(ctx, snapshot("BTCUSDT", 50000, nil))
	require.NoError(t, err)
	assert.Nil(t, sig)

	up, err := m.Evaluate(ctx, snapshot("BTCUSDT", 50000, map[string]float64{
		domain.IndicatorMomentum: 1.2,
	}))
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, domain.SideBuy, up.Side)
	assert.InDelta(t, 1.0, up.Confidence, 0.001, "momentum at 1.2 vs threshold 0.5 caps confidence at 1")

	down, err := m.Evaluate(ctx, snapshot("BTCUSDT", 50000, map[string]float64{
		domain.IndicatorMomentum: -0.6,
	}))
	require.NoError(t, err)
	require.NotNil(t, down)
	assert.Equal(t, domain.SideSell, down.Side)
	assert.InDelta(t, 0.6, down.Confidence, 0.001)
}

func TestMeanReversionFadesDeviation(t *testing.T) {
	m := NewMeanReversion(Params{
		Size:  decimal.NewFromFloat(0.1),
		Extra: map[string]any{"deviation_pct": 1.0},
	})
	ctx := context.Background()

	// Price 2% below SMA: contrarian BUY.
	sig, err := m.Evaluate(ctx, snapshot("ETHUSDT", 98, map[string]float64{
		domain.IndicatorSMA: 100,
	}))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SideBuy, sig.Side)

	// Price 2% above SMA: contrarian SELL.
	sig, err = m.Evaluate(ctx, snapshot("ETHUSDT", 102, map[string]float64{
		domain.IndicatorSMA: 100,
	}))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SideSell, sig.Side)

	// Within the band: declines.
	sig, err = m.Evaluate(ctx, snapshot("ETHUSDT", 100.5, map[string]float64{
		domain.IndicatorSMA: 100,
	}))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestRegistryStrategiesForIsDeterministic(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMomentum(Params{}), []string{"BTCUSDT", "ETHUSDT"})
	r.Register(NewAlternator(Params{}), []string{"BTCUSDT"})

	got := r.StrategiesFor("BTCUSDT")
	require.Len(t, got, 2)
	assert.Equal(t, "alternator", got[0].Name())
	assert.Equal(t, "momentum", got[1].Name())

	got = r.StrategiesFor("ETHUSDT")
	require.Len(t, got, 1)
	assert.Equal(t, "momentum", got[0].Name())

	assert.Empty(t, r.StrategiesFor("SOLUSDT"))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, r.Symbols())

	_, err := r.Get("alternator")
	require.NoError(t, err)
	_, err = r.Get("missing")
	require.Error(t, err)
}
