package feed

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// window is a fixed-capacity ring buffer of recent ticks for one symbol,
// from which the per-snapshot indicators are derived.
type window struct {
	prices []decimal.Decimal
	highs  []decimal.Decimal
	lows   []decimal.Decimal
	next   int
	count  int
}

func newWindow(capacity int) *window {
	if capacity < 2 {
		capacity = 2
	}
	return &window{
		prices: make([]decimal.Decimal, capacity),
		highs:  make([]decimal.Decimal, capacity),
		lows:   make([]decimal.Decimal, capacity),
	}
}

func (w *window) add(price, high, low decimal.Decimal) {
	w.prices[w.next] = price
	w.highs[w.next] = high
	w.lows[w.next] = low
	w.next = (w.next + 1) % len(w.prices)
	if w.count < len(w.prices) {
		w.count++
	}
}

// oldest returns the least recent price in the window.
func (w *window) oldest() decimal.Decimal {
	if w.count < len(w.prices) {
		return w.prices[0]
	}
	return w.prices[w.next]
}

// indicators derives the indicator map for the current window contents.
// SMA and momentum need at least two observations; volatility additionally
// needs high/low data.
func (w *window) indicators(price decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 5)
	if w.count < 2 {
		return out
	}

	sum := decimal.Zero
	high := w.highs[0]
	low := w.lows[0]
	for i := 0; i < w.count; i++ {
		sum = sum.Add(w.prices[i])
		if w.highs[i].GreaterThan(high) {
			high = w.highs[i]
		}
		if !w.lows[i].IsZero() && (low.IsZero() || w.lows[i].LessThan(low)) {
			low = w.lows[i]
		}
	}

	n := decimal.NewFromInt(int64(w.count))
	out[domain.IndicatorSMA] = sum.Div(n)
	out[domain.IndicatorHigh] = high
	out[domain.IndicatorLow] = low

	if oldest := w.oldest(); !oldest.IsZero() {
		out[domain.IndicatorMomentum] = price.Sub(oldest).Div(oldest).Mul(decimal.NewFromInt(100))
	}

	// Volatility: high-low range over the lookback as a percentage of the
	// low.
	if !low.IsZero() {
		out[domain.IndicatorVolatility] = high.Sub(low).Div(low).Mul(decimal.NewFromInt(100))
	}

	return out
}
