// Package feed turns raw exchange ticks into per-symbol MarketSnapshots with
// derived indicators, via either REST polling or a websocket stream.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/exchange"
)

// Feed maintains a rolling indicator window per symbol and serves the latest
// snapshot to the engine. When a SnapshotCache is configured, snapshots are
// also written through for external consumers.
type Feed struct {
	symbols []string
	cache   domain.SnapshotCache // optional
	logger  *slog.Logger

	mu      sync.RWMutex
	windows map[string]*window
	latest  map[string]domain.MarketSnapshot
	winSize int
}

// New creates a Feed for the given symbols. cache may be nil.
func New(symbols []string, windowSize int, cache domain.SnapshotCache, logger *slog.Logger) *Feed {
	f := &Feed{
		symbols: symbols,
		cache:   cache,
		logger:  logger.With(slog.String("component", "feed")),
		windows: make(map[string]*window, len(symbols)),
		latest:  make(map[string]domain.MarketSnapshot, len(symbols)),
		winSize: windowSize,
	}
	for _, sym := range symbols {
		f.windows[sym] = newWindow(windowSize)
	}
	return f
}

// Observe folds one tick into the symbol's window and publishes the derived
// snapshot. Ticks for unknown symbols are ignored.
func (f *Feed) Observe(ctx context.Context, tick exchange.Tick) {
	f.mu.Lock()
	w, ok := f.windows[tick.Symbol]
	if !ok {
		f.mu.Unlock()
		return
	}
	high := tick.High
	low := tick.Low
	if high.IsZero() {
		high = tick.Price
	}
	if low.IsZero() {
		low = tick.Price
	}
	w.add(tick.Price, high, low)

	snap := domain.MarketSnapshot{
		Symbol:     tick.Symbol,
		Price:      tick.Price,
		Indicators: w.indicators(tick.Price),
		Timestamp:  tick.Timestamp,
	}
	f.latest[tick.Symbol] = snap
	f.mu.Unlock()

	if f.cache != nil {
		if err := f.cache.SetSnapshot(ctx, snap); err != nil {
			f.logger.Debug("snapshot cache write failed",
				slog.String("symbol", tick.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Latest returns the most recent snapshot for a symbol and whether one
// exists yet.
func (f *Feed) Latest(symbol string) (domain.MarketSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, ok := f.latest[symbol]
	return snap, ok
}

// RunPoller fetches tickers for every symbol on the given interval until the
// context is cancelled. A failing symbol is logged and skipped; it must not
// block the other symbols.
func (f *Feed) RunPoller(ctx context.Context, source exchange.TickerSource, interval time.Duration) error {
	f.logger.Info("feed poller started",
		slog.Int("symbols", len(f.symbols)),
		slog.Duration("interval", interval),
	)
	defer f.logger.Info("feed poller stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		f.pollOnce(ctx, source)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *Feed) pollOnce(ctx context.Context, source exchange.TickerSource) {
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range f.symbols {
		sym := sym
		g.Go(func() error {
			tick, err := source.FetchTicker(gctx, sym)
			if err != nil {
				f.logger.Warn("ticker fetch failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				return nil
			}
			f.Observe(gctx, tick)
			return nil
		})
	}
	_ = g.Wait()
}

// RunStream consumes ticks from a websocket stream channel until it closes
// or the context is cancelled.
func (f *Feed) RunStream(ctx context.Context, ticks <-chan exchange.Tick) error {
	f.logger.Info("feed stream consumer started")
	defer f.logger.Info("feed stream consumer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			f.Observe(ctx, tick)
		}
	}
}
