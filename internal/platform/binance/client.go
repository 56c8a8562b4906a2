// Package binance implements domain.MarketProvider against the Binance spot
// REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/crypto"
	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// DefaultBaseURL is the production spot API root.
const DefaultBaseURL = "https://api.binance.com"

// fallbackLot applies when a symbol reports no LOT_SIZE filter.
var fallbackLot = domain.LotSize{
	StepSize: decimal.RequireFromString("0.00001"),
	MinQty:   decimal.RequireFromString("0.00001"),
}

// Client is the REST client for the Binance spot API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	recvWindow time.Duration
	httpClient *http.Client

	lotTTL time.Duration
	now    func() time.Time
	mu     sync.Mutex
	lots   map[string]cachedLot
}

type cachedLot struct {
	lot       domain.LotSize
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRecvWindow sets the recvWindow sent with signed requests.
func WithRecvWindow(d time.Duration) Option {
	return func(c *Client) { c.recvWindow = d }
}

// WithLotCacheTTL sets how long a symbol's lot size is reused before it is
// fetched again. Zero disables caching.
func WithLotCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.lotTTL = d }
}

// NewClient creates a new Binance REST client. auth may be nil when only
// public market data is needed.
func NewClient(baseURL string, auth *crypto.HMACAuth, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		recvWindow: 5 * time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lotTTL:     time.Hour,
		now:        time.Now,
		lots:       make(map[string]cachedLot),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FreeBalance returns the free (unlocked) amount of asset. An asset absent
// from the account is a zero balance.
func (c *Client) FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: get account: %w", err)
	}

	var acct accountInfo
	if err := json.Unmarshal(body, &acct); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode account: %w: %v", domain.ErrProvider, err)
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return b.Free, nil
		}
	}
	return decimal.Zero, nil
}

// Tickers returns the 24h rolling statistics for every symbol, in the order
// the exchange reports them.
func (c *Client) Tickers(ctx context.Context) (domain.MarketSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", nil, false)
	if err != nil {
		return nil, fmt.Errorf("binance: get tickers: %w", err)
	}

	var stats []tickerStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("binance: decode tickers: %w: %v", domain.ErrProvider, err)
	}

	out := make(domain.MarketSnapshot, 0, len(stats))
	for _, s := range stats {
		out = append(out, domain.Ticker{
			Symbol:             s.Symbol,
			PriceChangePercent: s.PriceChangePercent,
			QuoteVolume:        s.QuoteVolume,
			LastPrice:          s.LastPrice,
		})
	}
	return out, nil
}

// SpotPrice returns the latest traded price of symbol.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: get price %s: %w", symbol, err)
	}

	var tp tickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode price: %w: %v", domain.ErrProvider, err)
	}
	if !tp.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("binance: price %s: %w", symbol, domain.ErrInvalidQuote)
	}
	return tp.Price, nil
}

// LotSize returns the LOT_SIZE filter of symbol. Results are cached for the
// configured TTL.
func (c *Client) LotSize(ctx context.Context, symbol string) (domain.LotSize, error) {
	if lot, ok := c.cachedLot(symbol); ok {
		return lot, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false)
	if err != nil {
		return domain.LotSize{}, fmt.Errorf("binance: get exchange info %s: %w", symbol, err)
	}

	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.LotSize{}, fmt.Errorf("binance: decode exchange info: %w: %v", domain.ErrProvider, err)
	}

	lot := fallbackLot
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				lot = domain.LotSize{StepSize: f.StepSize, MinQty: f.MinQty}
			}
		}
	}

	c.storeLot(symbol, lot)
	return lot, nil
}

// MarketBuy places a MARKET buy for qty units of the base asset.
func (c *Client) MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	return c.marketOrder(ctx, symbol, domain.OrderSideBuy, qty)
}

// MarketSell places a MARKET sell for qty units of the base asset.
func (c *Client) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	return c.marketOrder(ctx, symbol, domain.OrderSideSell, qty)
}

func (c *Client) marketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderFill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newOrderRespType", "FULL")

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("binance: place %s order %s: %w", strings.ToLower(string(side)), symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderFill{}, fmt.Errorf("binance: decode order response: %w: %v", domain.ErrProvider, err)
	}
	return resp.toDomain(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) cachedLot(symbol string) (domain.LotSize, bool) {
	if c.lotTTL <= 0 {
		return domain.LotSize{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lots[symbol]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.lotTTL {
		return domain.LotSize{}, false
	}
	return entry.lot, true
}

func (c *Client) storeLot(symbol string, lot domain.LotSize) {
	if c.lotTTL <= 0 {
		return
	}
	c.mu.Lock()
	c.lots[symbol] = cachedLot{lot: lot, fetchedAt: c.now()}
	c.mu.Unlock()
}

// doRequest builds, optionally signs, sends, and reads an HTTP request
// against the Binance API. Signed requests carry the query in the URL for
// both GET and POST.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	query := ""
	if signed {
		if c.auth == nil {
			return nil, fmt.Errorf("%w: API credentials not configured", domain.ErrProvider)
		}
		query = c.auth.SignQuery(params, c.recvWindow)
	} else if len(params) > 0 {
		query = params.Encode()
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		req.Header.Set(crypto.APIKeyHeader, c.auth.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrProvider, err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to an *APIError.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	apiErr := &APIError{Status: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
		apiErr.Msg = http.StatusText(statusCode)
	}
	return apiErr
}
