package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Stream consumes a combined miniTicker websocket stream and delivers ticks
// on a channel. It reconnects with exponential backoff when the connection
// drops.
type Stream struct {
	wsURL   string
	symbols []string
	ticks   chan Tick
	logger  *slog.Logger
}

// NewStream creates a Stream for the given symbols. wsURL is the websocket
// endpoint base (e.g. wss://stream.example.com).
func NewStream(wsURL string, symbols []string, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:   strings.TrimRight(wsURL, "/"),
		symbols: symbols,
		ticks:   make(chan Tick, 256),
		logger:  logger.With(slog.String("component", "exchange_stream")),
	}
}

// Ticks returns the channel on which parsed ticks are delivered. The channel
// is closed when Run returns.
func (s *Stream) Ticks() <-chan Tick {
	return s.ticks
}

// streamURL builds the combined-stream URL: /stream?streams=a@miniTicker/b@miniTicker.
func (s *Stream) streamURL() string {
	parts := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		parts = append(parts, strings.ToLower(sym)+"@miniTicker")
	}
	return s.wsURL + "/stream?streams=" + strings.Join(parts, "/")
}

// Run connects and pumps ticks until the context is cancelled. Connection
// failures trigger reconnects with capped exponential backoff.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.ticks)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("stream disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

// miniTickerEvent is one message from a combined miniTicker stream.
type miniTickerEvent struct {
	Data struct {
		Symbol    string `json:"s"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		EventTime int64  `json:"E"`
	} `json:"data"`
}

// consume holds one websocket session open, forwarding ticks until an error.
func (s *Stream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.logger.Info("stream connected", slog.Int("symbols", len(s.symbols)))

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var ev miniTickerEvent
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Data.Symbol == "" {
			continue
		}

		price, perr := decimal.NewFromString(ev.Data.Close)
		if perr != nil {
			continue
		}
		high, _ := decimal.NewFromString(ev.Data.High)
		low, _ := decimal.NewFromString(ev.Data.Low)

		tick := Tick{
			Symbol:    ev.Data.Symbol,
			Price:     price,
			High:      high,
			Low:       low,
			Timestamp: time.UnixMilli(ev.Data.EventTime).UTC(),
		}

		select {
		case s.ticks <- tick:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Consumer is behind; drop the tick rather than block the
			// read loop.
		}
	}
}
