package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/crypto"
	"github.com/alanyoungcy/quantbot/internal/domain"
)

// RESTClient implements Client and TickerSource against a Binance-style spot
// REST API with HMAC-SHA256 request signing.
type RESTClient struct {
	baseURL      string
	signer       *crypto.Signer
	recvWindowMs int
	httpClient   *http.Client
	limiter      domain.RateLimiter
	rateLimit    int
	logger       *slog.Logger
}

// RESTConfig holds construction parameters for RESTClient.
type RESTConfig struct {
	BaseURL            string
	ApiKey             string
	ApiSecret          string
	RecvWindowMs       int
	Timeout            time.Duration
	RateLimitPerMinute int
}

// NewRESTClient creates a RESTClient. The limiter is optional; when nil no
// client-side rate limiting is applied.
func NewRESTClient(cfg RESTConfig, limiter domain.RateLimiter, logger *slog.Logger) *RESTClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		signer:       &crypto.Signer{Key: cfg.ApiKey, Secret: cfg.ApiSecret},
		recvWindowMs: cfg.RecvWindowMs,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      limiter,
		rateLimit:    cfg.RateLimitPerMinute,
		logger:       logger.With(slog.String("component", "exchange_rest")),
	}
}

// orderResponse is the exchange's order placement payload.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	Fills         []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
	TransactTime int64 `json:"transactTime"`
}

// PlaceOrder submits a market order and maps the exchange status onto the
// order state machine.
func (c *RESTClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", string(req.Side))
	q.Set("type", "MARKET")
	q.Set("quantity", req.Size.String())

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", q.Encode())
	if err != nil {
		return OrderAck{}, fmt.Errorf("exchange: place order %s %s: %w", req.Side, req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderAck{}, fmt.Errorf("exchange: decode order response: %w", err)
	}

	ack := OrderAck{
		ExchangeOrderID: fmt.Sprintf("%d", resp.OrderID),
		Status:          mapOrderStatus(resp.Status),
		FilledAt:        time.UnixMilli(resp.TransactTime).UTC(),
	}

	filledQty := decimal.Zero
	notional := decimal.Zero
	for _, f := range resp.Fills {
		price, perr := decimal.NewFromString(f.Price)
		qty, qerr := decimal.NewFromString(f.Qty)
		if perr != nil || qerr != nil {
			continue
		}
		filledQty = filledQty.Add(qty)
		notional = notional.Add(price.Mul(qty))
	}
	ack.FilledSize = filledQty
	if filledQty.Sign() > 0 {
		ack.FilledPrice = notional.Div(filledQty)
	}
	return ack, nil
}

// FetchPosition returns the exchange-reported position for reconciliation.
func (c *RESTClient) FetchPosition(ctx context.Context, symbol string) (ReportedPosition, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/position", q.Encode())
	if err != nil {
		return ReportedPosition{}, fmt.Errorf("exchange: fetch position %s: %w", symbol, err)
	}

	var resp struct {
		Symbol     string `json:"symbol"`
		Side       string `json:"side"`
		Size       string `json:"size"`
		EntryPrice string `json:"entryPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ReportedPosition{}, fmt.Errorf("exchange: decode position response: %w", err)
	}

	size, err := decimal.NewFromString(resp.Size)
	if err != nil {
		return ReportedPosition{}, fmt.Errorf("exchange: parse position size %q: %w", resp.Size, err)
	}
	entry, _ := decimal.NewFromString(resp.EntryPrice)

	side := domain.PositionFlat
	switch strings.ToUpper(resp.Side) {
	case "LONG":
		side = domain.PositionLong
	case "SHORT":
		side = domain.PositionShort
	}

	return ReportedPosition{
		Symbol:     resp.Symbol,
		Side:       side,
		Size:       size,
		EntryPrice: entry,
	}, nil
}

// FetchBalances returns all non-zero account balances.
func (c *RESTClient) FetchBalances(ctx context.Context) ([]Balance, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", "")
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch balances: %w", err)
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode account response: %w", err)
	}

	out := make([]Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, ferr := decimal.NewFromString(b.Free)
		locked, lerr := decimal.NewFromString(b.Locked)
		if ferr != nil || lerr != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

// FetchTicker returns the latest 24h ticker for a symbol (public endpoint).
func (c *RESTClient) FetchTicker(ctx context.Context, symbol string) (Tick, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.publicRequest(ctx, "/api/v3/ticker/24hr", q.Encode())
	if err != nil {
		return Tick{}, fmt.Errorf("exchange: fetch ticker %s: %w", symbol, err)
	}

	var resp struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		HighPrice string `json:"highPrice"`
		LowPrice  string `json:"lowPrice"`
		CloseTime int64  `json:"closeTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Tick{}, fmt.Errorf("exchange: decode ticker response: %w", err)
	}

	price, err := decimal.NewFromString(resp.LastPrice)
	if err != nil {
		return Tick{}, fmt.Errorf("exchange: parse last price %q: %w", resp.LastPrice, err)
	}
	high, _ := decimal.NewFromString(resp.HighPrice)
	low, _ := decimal.NewFromString(resp.LowPrice)

	return Tick{
		Symbol:    resp.Symbol,
		Price:     price,
		High:      high,
		Low:       low,
		Timestamp: time.UnixMilli(resp.CloseTime).UTC(),
	}, nil
}

// signedRequest executes an HMAC-signed request and returns the response
// body. Non-2xx responses are returned as errors with the body excerpt.
func (c *RESTClient) signedRequest(ctx context.Context, method, path, query string) ([]byte, error) {
	if err := c.allow(ctx); err != nil {
		return nil, err
	}

	signed := c.signer.SignedQuery(query, c.recvWindowMs)
	reqURL := c.baseURL + path + "?" + signed

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.signer.Key)

	return c.do(req)
}

// publicRequest executes an unsigned GET against a public endpoint. Market
// data polls are paced rather than budgeted: the call blocks until the
// limiter admits it instead of failing fast like the signed order path.
func (c *RESTClient) publicRequest(ctx context.Context, path, query string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "exchange_public"); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A limiter outage must not take market data down.
			c.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		}
	}

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *RESTClient) allow(ctx context.Context) error {
	if c.limiter == nil || c.rateLimit <= 0 {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, "exchange_rest", c.rateLimit, time.Minute)
	if err != nil {
		// A limiter outage must not take trading down; log and proceed.
		c.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (c *RESTClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	return body, nil
}

// mapOrderStatus maps exchange order statuses onto the order state machine.
func mapOrderStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "FILLED":
		return domain.OrderStatusFilled
	case "NEW", "PARTIALLY_FILLED":
		return domain.OrderStatusSubmitted
	case "CANCELED", "EXPIRED":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusFailed
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Compile-time interface checks.
var (
	_ Client       = (*RESTClient)(nil)
	_ TickerSource = (*RESTClient)(nil)
)
