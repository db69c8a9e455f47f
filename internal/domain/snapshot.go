package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Well-known indicator names produced by the feed layer. Strategies and the
// risk validator look these up in MarketSnapshot.Indicators.
const (
	IndicatorSMA        = "sma"
	IndicatorMomentum   = "momentum"
	IndicatorVolatility = "volatility_pct" // high-low range over the lookback, in percent
	IndicatorHigh       = "high"
	IndicatorLow        = "low"
)

// MarketSnapshot is the per-symbol market state handed to strategies on each
// evaluation tick. It is immutable once produced; consumers must not mutate
// the Indicators map.
type MarketSnapshot struct {
	Symbol     string
	Price      decimal.Decimal
	Indicators map[string]decimal.Decimal
	Timestamp  time.Time
}

// Indicator returns the named indicator value and whether it is present.
func (s MarketSnapshot) Indicator(name string) (decimal.Decimal, bool) {
	v, ok := s.Indicators[name]
	return v, ok
}

// CloneIndicators returns a copy of the indicator map suitable for embedding
// in a Signal, so the snapshot map is never shared across goroutines.
func (s MarketSnapshot) CloneIndicators() map[string]decimal.Decimal {
	if s.Indicators == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(s.Indicators))
	for k, v := range s.Indicators {
		out[k] = v
	}
	return out
}
