package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// Alternator is a reference strategy that fires on every eligible evaluation,
// alternating BUY and SELL deterministically via an internal counter. The
// counter is per-instance state, not package state, so tests can construct
// isolated instances.
type Alternator struct {
	params Params

	mu      sync.Mutex
	counter map[string]uint64 // per-symbol fire counter
}

// NewAlternator creates an Alternator with its counter at zero (first signal
// is a BUY).
func NewAlternator(params Params) *Alternator {
	return &Alternator{
		params:  params,
		counter: make(map[string]uint64),
	}
}

// Name returns the strategy identifier.
func (a *Alternator) Name() string { return "alternator" }

// Evaluate always produces a signal: BUY on even counter values, SELL on odd.
func (a *Alternator) Evaluate(_ context.Context, snap domain.MarketSnapshot) (*domain.Signal, error) {
	a.mu.Lock()
	n := a.counter[snap.Symbol]
	a.counter[snap.Symbol] = n + 1
	a.mu.Unlock()

	side := domain.SideBuy
	if n%2 == 1 {
		side = domain.SideSell
	}

	return &domain.Signal{
		ID:         uuid.New().String(),
		Strategy:   a.Name(),
		Symbol:     snap.Symbol,
		Side:       side,
		Confidence: 1.0,
		Price:      snap.Price,
		Size:       a.params.Size,
		Indicators: snap.CloneIndicators(),
		Reason:     "alternating test signal",
		CreatedAt:  time.Now().UTC(),
	}, nil
}
