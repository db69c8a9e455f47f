package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

func fill(orderID, symbol string, side domain.Side, size, price float64) domain.Fill {
	return domain.Fill{
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      side,
		Size:      decimal.NewFromFloat(size),
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGetReturnsFlatDefault(t *testing.T) {
	l := New(false)
	pos := l.Get("BTCUSDT")
	assert.Equal(t, "BTCUSDT", pos.Symbol)
	assert.Equal(t, domain.PositionFlat, pos.Side)
	assert.True(t, pos.Size.IsZero())
}

func TestApplyFillRoundTripToFlat(t *testing.T) {
	l := New(false)

	pos, err := l.ApplyFill(fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromFloat(0.1)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(50000)))

	pos, err = l.ApplyFill(fill("o2", "BTCUSDT", domain.SideSell, 0.1, 51000))
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())
	assert.Empty(t, l.Snapshot(), "flat positions are not open positions")
}

func TestApplyFillWeightedAverageEntry(t *testing.T) {
	l := New(false)

	_, err := l.ApplyFill(fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000))
	require.NoError(t, err)
	pos, err := l.ApplyFill(fill("o2", "BTCUSDT", domain.SideBuy, 0.3, 54000))
	require.NoError(t, err)

	assert.True(t, pos.Size.Equal(decimal.NewFromFloat(0.4)))
	// (0.1*50000 + 0.3*54000) / 0.4 = 53000
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(53000)),
		"entry should be size-weighted average, got %s", pos.EntryPrice)
}

func TestApplyFillDeduplicatesByOrderID(t *testing.T) {
	l := New(false)

	f := fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000)
	_, err := l.ApplyFill(f)
	require.NoError(t, err)

	_, err = l.ApplyFill(f)
	require.ErrorIs(t, err, domain.ErrDuplicateFill)

	pos := l.Get("BTCUSDT")
	assert.True(t, pos.Size.Equal(decimal.NewFromFloat(0.1)), "duplicate must not double-mutate")
}

func TestApplyFillRejectsNonPositiveSize(t *testing.T) {
	l := New(false)
	_, err := l.ApplyFill(fill("o1", "BTCUSDT", domain.SideBuy, 0, 50000))
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOversizedReductionClampsToFlatWithoutFlip(t *testing.T) {
	l := New(false)

	_, err := l.ApplyFill(fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000))
	require.NoError(t, err)

	pos, err := l.ApplyFill(fill("o2", "BTCUSDT", domain.SideSell, 0.15, 52000))
	require.NoError(t, err)
	assert.True(t, pos.IsFlat(), "without allow_flip the excess is discarded")
	assert.True(t, pos.Size.IsZero())
}

func TestOversizedReductionFlipsWithFlip(t *testing.T) {
	l := New(true)

	_, err := l.ApplyFill(fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000))
	require.NoError(t, err)

	pos, err := l.ApplyFill(fill("o2", "BTCUSDT", domain.SideSell, 0.15, 52000))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionShort, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromFloat(0.05)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(52000)), "flipped entry is the fill price")
}

func TestPartialReductionKeepsEntry(t *testing.T) {
	l := New(false)

	_, err := l.ApplyFill(fill("o1", "ETHUSDT", domain.SideBuy, 1.0, 3000))
	require.NoError(t, err)

	pos, err := l.ApplyFill(fill("o2", "ETHUSDT", domain.SideSell, 0.4, 3100))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromFloat(0.6)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(3000)), "reductions never touch the entry price")
}

func TestReplayIsIdempotent(t *testing.T) {
	journal := []domain.Fill{
		fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000),
		fill("o2", "BTCUSDT", domain.SideBuy, 0.1, 52000),
		fill("o1", "BTCUSDT", domain.SideBuy, 0.1, 50000), // duplicate, skipped
		fill("o3", "ETHUSDT", domain.SideSell, 2.0, 3000),
	}

	l := New(true)
	require.NoError(t, l.Replay(journal))

	btc := l.Get("BTCUSDT")
	assert.True(t, btc.Size.Equal(decimal.NewFromFloat(0.2)))
	assert.True(t, btc.EntryPrice.Equal(decimal.NewFromInt(51000)))

	eth := l.Get("ETHUSDT")
	assert.Equal(t, domain.PositionShort, eth.Side)
	assert.True(t, eth.Size.Equal(decimal.NewFromInt(2)))

	// Replaying into a fresh ledger yields the same state.
	l2 := New(true)
	require.NoError(t, l2.Replay(journal))
	assert.True(t, l2.Get("BTCUSDT").Size.Equal(btc.Size))
	assert.True(t, l2.TotalExposure().Equal(l.TotalExposure()))
}
