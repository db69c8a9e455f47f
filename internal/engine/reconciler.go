package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/exchange"
	"github.com/alanyoungcy/quantbot/internal/ledger"
	"github.com/alanyoungcy/quantbot/internal/notify"
)

// Reconciler periodically compares the local ledger against positions the
// exchange reports and raises drift through the log and the notifier. It
// never mutates the ledger: a mismatch means fills were lost or applied
// twice, which needs a human.
type Reconciler struct {
	client   exchange.Client
	book     *ledger.Ledger
	fills    domain.FillStore // optional, adds fill context to drift alerts
	notifier *notify.Notifier // optional
	symbols  []string
	interval time.Duration
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler over the given symbols. fills and
// notifier may be nil.
func NewReconciler(client exchange.Client, book *ledger.Ledger, fills domain.FillStore, notifier *notify.Notifier, symbols []string, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		client:   client,
		book:     book,
		fills:    fills,
		notifier: notifier,
		symbols:  symbols,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run checks all symbols on every interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.checkAll(ctx)
		}
	}
}

func (r *Reconciler) checkAll(ctx context.Context) {
	for _, sym := range r.symbols {
		reported, err := r.client.FetchPosition(ctx, sym)
		if err != nil {
			r.logger.Warn("position fetch failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}

		local := r.book.Get(sym)
		if local.Size.Equal(reported.Size) && (local.IsFlat() || local.Side == reported.Side) {
			continue
		}

		r.reportDrift(ctx, sym, local, reported)
	}
}

// reportDrift logs the mismatch and alerts the notifier, including how many
// fills the journal recorded for the symbol today so an operator can tell a
// late fill from a double-applied one.
func (r *Reconciler) reportDrift(ctx context.Context, symbol string, local domain.Position, reported exchange.ReportedPosition) {
	r.logger.Error("position drift detected",
		slog.String("symbol", symbol),
		slog.String("local_side", string(local.Side)),
		slog.String("local_size", local.Size.String()),
		slog.String("exchange_side", string(reported.Side)),
		slog.String("exchange_size", reported.Size.String()),
	)

	msg := fmt.Sprintf("local=%s %s exchange=%s %s",
		local.Side, local.Size.String(), reported.Side, reported.Size.String())

	if r.fills != nil {
		midnight := time.Now().UTC().Truncate(24 * time.Hour)
		todays, err := r.fills.ListBySymbol(ctx, symbol, domain.ListOpts{Since: &midnight})
		if err != nil {
			r.logger.Warn("fill journal lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		} else {
			msg += fmt.Sprintf(" journaled_fills_today=%d", len(todays))
		}
	}

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, notify.EventDrift,
			fmt.Sprintf("Position drift %s", symbol), msg,
		); err != nil {
			r.logger.Warn("drift notification failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
