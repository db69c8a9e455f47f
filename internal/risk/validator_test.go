package risk

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionSize:  decimal.NewFromFloat(1.0),
		MaxDailyTrades:   10,
		MaxVolatilityPct: decimal.NewFromFloat(5.0),
		StopLossPct:      decimal.NewFromFloat(2.0),
		TakeProfitPct:    decimal.NewFromFloat(4.0),
	}
}

func testSignal(side domain.Side, size float64) domain.Signal {
	return domain.Signal{
		ID:         "sig-1",
		Strategy:   "alternator",
		Symbol:     "BTCUSDT",
		Side:       side,
		Confidence: 1.0,
		Price:      decimal.NewFromInt(50000),
		Size:       decimal.NewFromFloat(size),
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newValidator(t *testing.T, allowFlip bool) (*Validator, *ledger.Ledger) {
	t.Helper()
	book := ledger.New(allowFlip)
	return NewValidator(book, NewDailyCounter(), testLogger()), book
}

func TestValidateApprovesWithinLimits(t *testing.T) {
	v, _ := newValidator(t, false)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := v.Validate(testSignal(domain.SideBuy, 0.1), testLimits(), now)
	require.True(t, d.Approved())
	assert.True(t, d.AdjustedSize.Equal(decimal.NewFromFloat(0.1)))
	assert.Equal(t, now, d.DecidedAt)
}

func TestValidateEleventhTradeHitsDailyLimit(t *testing.T) {
	v, _ := newValidator(t, false)
	now := time.Date(2025, 6, 1, 0, 30, 0, 0, time.UTC)
	limits := testLimits()

	// No fills are applied, so only the daily cap is in play.
	for i := 0; i < 10; i++ {
		d := v.Validate(testSignal(domain.SideBuy, 0.05), limits, now.Add(time.Duration(i)*time.Minute))
		require.True(t, d.Approved(), "trade %d should be approved", i+1)
	}

	d := v.Validate(testSignal(domain.SideBuy, 0.05), limits, now.Add(time.Hour))
	require.False(t, d.Approved())
	assert.Equal(t, domain.RejectDailyLimit, d.Reason)

	// The cap resets at UTC midnight.
	nextDay := time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC)
	d = v.Validate(testSignal(domain.SideBuy, 0.05), limits, nextDay)
	assert.True(t, d.Approved())
}

// A burst of signals across distinct symbols races only on the daily
// budget. Whatever the interleaving, approvals never exceed the cap.
func TestValidateConcurrentBurstHonorsDailyCap(t *testing.T) {
	v, _ := newValidator(t, false)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limits := testLimits() // MaxDailyTrades: 10

	const workers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sig := testSignal(domain.SideBuy, 0.1)
			sig.ID = fmt.Sprintf("sig-%d", n)
			sig.Symbol = fmt.Sprintf("SYM%dUSDT", n)
			if v.Validate(sig, limits, now).Approved() {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, limits.MaxDailyTrades, approved)
}

// An exhausted daily budget must never block a closing-only exit, and the
// exit must not consume budget either.
func TestValidateClosingOnlyBypassesDailyCap(t *testing.T) {
	v, book := newValidator(t, false)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limits := testLimits()
	limits.MaxDailyTrades = 1

	d := v.Validate(testSignal(domain.SideBuy, 0.1), limits, now)
	require.True(t, d.Approved())
	_, err := book.ApplyFill(domain.Fill{
		OrderID: "o1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Size: decimal.NewFromFloat(0.1), Price: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)

	// Budget spent: an ordinary signal is refused.
	d = v.Validate(testSignal(domain.SideBuy, 0.05), limits, now)
	require.False(t, d.Approved())
	require.Equal(t, domain.RejectDailyLimit, d.Reason)

	// A stop-loss style exit still goes through.
	exit := testSignal(domain.SideSell, 0.1)
	exit.Strategy = "risk_exit"
	exit.ClosingOnly = true
	d = v.Validate(exit, limits, now)
	require.True(t, d.Approved(), "closing-only exits bypass the daily cap")
	assert.Equal(t, 1, v.counter.Count("alternator", now), "exits must not consume budget")
}

func TestValidateRejectsHighVolatility(t *testing.T) {
	v, _ := newValidator(t, false)
	now := time.Now().UTC()

	sig := testSignal(domain.SideBuy, 0.1)
	sig.Indicators = map[string]decimal.Decimal{
		domain.IndicatorVolatility: decimal.NewFromFloat(7.5),
	}

	d := v.Validate(sig, testLimits(), now)
	require.False(t, d.Approved())
	assert.Equal(t, domain.RejectVolatility, d.Reason)
}

func TestValidateMissingVolatilityIndicatorPasses(t *testing.T) {
	v, _ := newValidator(t, false)
	d := v.Validate(testSignal(domain.SideBuy, 0.1), testLimits(), time.Now().UTC())
	assert.True(t, d.Approved())
}

func TestValidateRejectsOversizedPosition(t *testing.T) {
	v, book := newValidator(t, false)
	now := time.Now().UTC()

	_, err := book.ApplyFill(domain.Fill{
		OrderID: "o1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Size: decimal.NewFromFloat(0.95), Price: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)

	d := v.Validate(testSignal(domain.SideBuy, 0.1), testLimits(), now)
	require.False(t, d.Approved())
	assert.Equal(t, domain.RejectPositionSize, d.Reason)
}

func TestValidateFreshShortRequiresFlip(t *testing.T) {
	now := time.Now().UTC()

	v, _ := newValidator(t, false)
	limits := testLimits()
	d := v.Validate(testSignal(domain.SideSell, 0.1), limits, now)
	require.False(t, d.Approved())
	assert.Equal(t, domain.RejectPositionSize, d.Reason)

	v2, _ := newValidator(t, true)
	limits.AllowFlip = true
	d = v2.Validate(testSignal(domain.SideSell, 0.1), limits, now)
	assert.True(t, d.Approved())
}

func TestValidateOversizedSellFlipsOrClamps(t *testing.T) {
	now := time.Now().UTC()
	open := domain.Fill{
		OrderID: "o1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Size: decimal.NewFromFloat(0.1), Price: decimal.NewFromInt(50000),
	}

	// Flip enabled: the whole 0.15 is allowed, leaving a 0.05 short.
	v, book := newValidator(t, true)
	_, err := book.ApplyFill(open)
	require.NoError(t, err)
	limits := testLimits()
	limits.AllowFlip = true

	d := v.Validate(testSignal(domain.SideSell, 0.15), limits, now)
	require.True(t, d.Approved())
	assert.True(t, d.AdjustedSize.Equal(decimal.NewFromFloat(0.15)))

	// Flip disabled: the fill is clamped to the open size.
	v2, book2 := newValidator(t, false)
	_, err = book2.ApplyFill(open)
	require.NoError(t, err)

	d = v2.Validate(testSignal(domain.SideSell, 0.15), testLimits(), now)
	require.True(t, d.Approved())
	assert.True(t, d.AdjustedSize.Equal(decimal.NewFromFloat(0.1)),
		"clamped to open position size, got %s", d.AdjustedSize)
}

func TestValidateRejectsMalformedSignals(t *testing.T) {
	v, _ := newValidator(t, false)
	now := time.Now().UTC()

	cases := []struct {
		name   string
		mutate func(*domain.Signal)
	}{
		{"empty symbol", func(s *domain.Signal) { s.Symbol = "" }},
		{"unknown side", func(s *domain.Signal) { s.Side = "HOLD" }},
		{"zero size", func(s *domain.Signal) { s.Size = decimal.Zero }},
		{"zero price", func(s *domain.Signal) { s.Price = decimal.Zero }},
		{"confidence out of range", func(s *domain.Signal) { s.Confidence = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := testSignal(domain.SideBuy, 0.1)
			tc.mutate(&sig)
			d := v.Validate(sig, testLimits(), now)
			require.False(t, d.Approved())
			assert.Equal(t, domain.RejectInvalidState, d.Reason)
		})
	}
}

func TestValidateClosingOnlyCannotGrow(t *testing.T) {
	v, _ := newValidator(t, true)
	limits := testLimits()
	limits.AllowFlip = true

	sig := testSignal(domain.SideBuy, 0.1)
	sig.ClosingOnly = true

	d := v.Validate(sig, limits, time.Now().UTC())
	require.False(t, d.Approved())
	assert.Equal(t, domain.RejectInvalidState, d.Reason)
}

func TestCheckExitStopLossAndTakeProfit(t *testing.T) {
	v, book := newValidator(t, false)
	now := time.Now().UTC()
	limits := testLimits()

	_, err := book.ApplyFill(domain.Fill{
		OrderID: "o1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Size: decimal.NewFromFloat(0.1), Price: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)

	// Within bounds: no forced exit.
	assert.Nil(t, v.CheckExit("BTCUSDT", decimal.NewFromInt(50500), limits, now))

	// Down 3% with a 2% stop: forced SELL of the whole position.
	exit := v.CheckExit("BTCUSDT", decimal.NewFromInt(48500), limits, now)
	require.NotNil(t, exit)
	assert.Equal(t, domain.SideSell, exit.Side)
	assert.True(t, exit.ClosingOnly)
	assert.True(t, exit.Size.Equal(decimal.NewFromFloat(0.1)))
	assert.Equal(t, "risk_exit", exit.Strategy)

	// Up 5% with a 4% take-profit: forced exit too.
	exit = v.CheckExit("BTCUSDT", decimal.NewFromInt(52500), limits, now)
	require.NotNil(t, exit)
	assert.True(t, exit.ClosingOnly)

	// Flat symbols never force exits.
	assert.Nil(t, v.CheckExit("ETHUSDT", decimal.NewFromInt(3000), limits, now))
}
