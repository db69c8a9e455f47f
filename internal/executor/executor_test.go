package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/exchange"
	"github.com/alanyoungcy/quantbot/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient scripts PlaceOrder responses for live-mode tests.
type fakeClient struct {
	ack    exchange.OrderAck
	err    error
	placed int
}

func (f *fakeClient) PlaceOrder(_ context.Context, _ exchange.OrderRequest) (exchange.OrderAck, error) {
	f.placed++
	return f.ack, f.err
}

func (f *fakeClient) FetchPosition(_ context.Context, symbol string) (exchange.ReportedPosition, error) {
	return exchange.ReportedPosition{Symbol: symbol}, nil
}

func (f *fakeClient) FetchBalances(_ context.Context) ([]exchange.Balance, error) {
	return nil, nil
}

func approvedDecision(side domain.Side, size float64) domain.RiskDecision {
	return domain.RiskDecision{
		Signal: domain.Signal{
			ID:       "sig-1",
			Strategy: "alternator",
			Symbol:   "BTCUSDT",
			Side:     side,
			Price:    decimal.NewFromInt(50000),
			Size:     decimal.NewFromFloat(size),
		},
		Outcome:      domain.RiskApproved,
		AdjustedSize: decimal.NewFromFloat(size),
		DecidedAt:    time.Now().UTC(),
	}
}

func TestPaperExecutionFillsAndMutatesLedger(t *testing.T) {
	book := ledger.New(false)
	exec := New(Config{Mode: ModePaper, SlippageBps: 10}, nil, nil, nil, testLogger())

	res := exec.Execute(context.Background(), approvedDecision(domain.SideBuy, 0.1), book.ApplyFill)
	require.True(t, res.Filled())
	assert.NotEmpty(t, res.OrderID)

	// 10 bps of slippage on a buy worsens the price: 50000 * 1.001 = 50050.
	assert.True(t, res.Price.Equal(decimal.NewFromInt(50050)), "got %s", res.Price)

	pos := book.Get("BTCUSDT")
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromFloat(0.1)))
}

func TestPaperSellSlippageWorsensReceived(t *testing.T) {
	book := ledger.New(true)
	exec := New(Config{Mode: ModePaper, SlippageBps: 10}, nil, nil, nil, testLogger())

	res := exec.Execute(context.Background(), approvedDecision(domain.SideSell, 0.1), book.ApplyFill)
	require.True(t, res.Filled())
	assert.True(t, res.Price.Equal(decimal.NewFromInt(49950)), "got %s", res.Price)
}

func TestExecuteUsesAdjustedSize(t *testing.T) {
	book := ledger.New(false)
	_, err := book.ApplyFill(domain.Fill{
		OrderID: "seed", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Size: decimal.NewFromFloat(0.1), Price: decimal.NewFromInt(50000),
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	exec := New(Config{Mode: ModePaper}, nil, nil, nil, testLogger())

	// Oversized sell clamped by the validator to the open size.
	d := approvedDecision(domain.SideSell, 0.15)
	d.AdjustedSize = decimal.NewFromFloat(0.1)

	res := exec.Execute(context.Background(), d, book.ApplyFill)
	require.True(t, res.Filled())
	assert.True(t, res.Size.Equal(decimal.NewFromFloat(0.1)))
	assert.True(t, book.Get("BTCUSDT").IsFlat())
}

func TestLiveFailureLeavesLedgerUntouched(t *testing.T) {
	book := ledger.New(false)
	client := &fakeClient{err: errors.New("exchange unavailable")}
	exec := New(Config{Mode: ModeLive}, client, nil, nil, testLogger())

	res := exec.Execute(context.Background(), approvedDecision(domain.SideBuy, 0.1), book.ApplyFill)
	require.False(t, res.Filled())
	assert.Equal(t, domain.OrderStatusFailed, res.Status)
	assert.Equal(t, 1, client.placed, "no automatic retry")
	assert.True(t, book.Get("BTCUSDT").IsFlat(), "failed placement must not mutate the ledger")
}

func TestLiveTimeoutLeavesLedgerUntouched(t *testing.T) {
	book := ledger.New(false)
	client := &fakeClient{err: context.DeadlineExceeded}
	exec := New(Config{Mode: ModeLive, OrderTimeout: time.Millisecond}, client, nil, nil, testLogger())

	res := exec.Execute(context.Background(), approvedDecision(domain.SideBuy, 0.1), book.ApplyFill)
	require.False(t, res.Filled())
	assert.Equal(t, domain.OrderStatusFailed, res.Status)
	assert.Contains(t, res.Detail, "timed out")
	assert.True(t, book.Get("BTCUSDT").IsFlat())
}

func TestLiveCancelledAckDoesNotFill(t *testing.T) {
	book := ledger.New(false)
	client := &fakeClient{ack: exchange.OrderAck{
		ExchangeOrderID: "ex-1",
		Status:          domain.OrderStatusCancelled,
	}}
	exec := New(Config{Mode: ModeLive}, client, nil, nil, testLogger())

	res := exec.Execute(context.Background(), approvedDecision(domain.SideBuy, 0.1), book.ApplyFill)
	assert.Equal(t, domain.OrderStatusCancelled, res.Status)
	assert.True(t, book.Get("BTCUSDT").IsFlat())
}

func TestLiveConfirmedFillMutatesLedgerAtAckPrice(t *testing.T) {
	book := ledger.New(false)
	filledAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{ack: exchange.OrderAck{
		ExchangeOrderID: "ex-1",
		Status:          domain.OrderStatusFilled,
		FilledSize:      decimal.NewFromFloat(0.1),
		FilledPrice:     decimal.NewFromInt(50025),
		FilledAt:        filledAt,
	}}
	exec := New(Config{Mode: ModeLive}, client, nil, nil, testLogger())

	res := exec.Execute(context.Background(), approvedDecision(domain.SideBuy, 0.1), book.ApplyFill)
	require.True(t, res.Filled())
	assert.True(t, res.Price.Equal(decimal.NewFromInt(50025)))
	assert.Equal(t, filledAt, res.FilledAt)

	pos := book.Get("BTCUSDT")
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(50025)))
}

func TestOrderStateMachine(t *testing.T) {
	now := time.Now().UTC()

	o := domain.Order{ID: "o1", Status: domain.OrderStatusCreated}
	require.NoError(t, o.Transition(domain.OrderStatusSubmitted, now))
	require.NoError(t, o.Transition(domain.OrderStatusFilled, now))
	require.NotNil(t, o.FilledAt)

	// Terminal states admit no further transitions.
	err := o.Transition(domain.OrderStatusCancelled, now)
	require.ErrorIs(t, err, domain.ErrOrderTerminal)

	// created cannot jump straight to filled.
	o2 := domain.Order{ID: "o2", Status: domain.OrderStatusCreated}
	require.Error(t, o2.Transition(domain.OrderStatusFilled, now))
}
