// Package metrics exposes the bot's Prometheus instrumentation: signal,
// order, and rejection counters plus per-symbol position gauges.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SignalsGenerated counts signals emitted by strategies, before risk checks.
var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quantbot",
		Subsystem: "trading",
		Name:      "signals_generated_total",
		Help:      "Total number of trade signals generated by strategies",
	},
	[]string{"strategy", "symbol", "side"},
)

// OrdersFilled counts confirmed fills.
var OrdersFilled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quantbot",
		Subsystem: "trading",
		Name:      "orders_filled_total",
		Help:      "Total number of filled orders",
	},
	[]string{"symbol", "side"},
)

// OrdersRejected counts risk rejections by structured reason.
var OrdersRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quantbot",
		Subsystem: "trading",
		Name:      "orders_rejected_total",
		Help:      "Total number of signals rejected by the risk validator",
	},
	[]string{"reason"},
)

// ExecutionFailures counts orders that failed or were cancelled at the
// exchange.
var ExecutionFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quantbot",
		Subsystem: "trading",
		Name:      "execution_failures_total",
		Help:      "Total number of orders that failed to execute",
	},
	[]string{"symbol", "status"},
)

// PositionSize tracks the current absolute position size per symbol.
var PositionSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "quantbot",
		Subsystem: "trading",
		Name:      "position_size",
		Help:      "Current position size per symbol (0 when flat)",
	},
	[]string{"symbol", "side"},
)

// DecisionLatency observes time from signal creation to risk decision.
var DecisionLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "quantbot",
		Subsystem: "trading",
		Name:      "decision_latency_ms",
		Help:      "Latency from signal creation to risk decision in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
)

// Serve runs the Prometheus exposition endpoint on addr until the context is
// cancelled. It blocks.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("metrics server started", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
