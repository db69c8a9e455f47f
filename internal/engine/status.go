package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/quantbot/internal/domain"
	"github.com/alanyoungcy/quantbot/internal/ledger"
	"github.com/alanyoungcy/quantbot/internal/notify"
)

// StatusReporter periodically summarizes trading activity for operators: the
// day's decision counts, order activity per symbol, the most recent
// decisions, and the open positions.
type StatusReporter struct {
	decisions domain.DecisionStore
	orders    domain.OrderStore // optional
	book      *ledger.Ledger
	notifier  *notify.Notifier
	symbols   []string
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatusReporter creates a StatusReporter. orders may be nil when no
// order journal is configured.
func NewStatusReporter(decisions domain.DecisionStore, orders domain.OrderStore, book *ledger.Ledger, notifier *notify.Notifier, symbols []string, interval time.Duration, logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		decisions: decisions,
		orders:    orders,
		book:      book,
		notifier:  notifier,
		symbols:   symbols,
		interval:  interval,
		logger:    logger.With(slog.String("component", "status")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run reports on every interval until the context is cancelled.
func (s *StatusReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *StatusReporter) report(ctx context.Context) {
	now := s.now()
	midnight := now.Truncate(24 * time.Hour)

	approved, err := s.decisions.CountSince(ctx, domain.RiskApproved, midnight)
	if err != nil {
		s.logger.Warn("decision count failed", slog.String("error", err.Error()))
		return
	}
	rejected, err := s.decisions.CountSince(ctx, domain.RiskRejected, midnight)
	if err != nil {
		s.logger.Warn("decision count failed", slog.String("error", err.Error()))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "today: %d approved, %d rejected\n", approved, rejected)

	if s.orders != nil {
		for _, sym := range s.symbols {
			orders, err := s.orders.ListBySymbol(ctx, sym, domain.ListOpts{Since: &midnight, Limit: 100})
			if err != nil {
				s.logger.Warn("order journal lookup failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				continue
			}
			if len(orders) > 0 {
				fmt.Fprintf(&b, "%s: %d orders today\n", sym, len(orders))
			}
		}
	}

	for sym, pos := range s.book.Snapshot() {
		fmt.Fprintf(&b, "open %s: %s %s @ %s\n", sym, pos.Side, pos.Size.String(), pos.EntryPrice.String())
	}

	if recent, err := s.decisions.ListRecent(ctx, 5); err == nil {
		for _, d := range recent {
			fmt.Fprintf(&b, "last: %s %s %s -> %s %s\n",
				d.Signal.Strategy, d.Signal.Side, d.Signal.Symbol, d.Outcome, d.Reason)
		}
	}

	if err := s.notifier.Notify(ctx, notify.EventStatus, "Trading status", b.String()); err != nil {
		s.logger.Warn("status notification failed", slog.String("error", err.Error()))
	}
}
