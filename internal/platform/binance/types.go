package binance

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// --------------------------------------------------------------------------
// Binance spot API DTOs
// --------------------------------------------------------------------------

// tickerStats is one element of GET /api/v3/ticker/24hr.
type tickerStats struct {
	Symbol             string          `json:"symbol"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
}

// tickerPrice is the body of GET /api/v3/ticker/price?symbol=X.
type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// accountInfo is the subset of GET /api/v3/account the bot reads.
type accountInfo struct {
	Balances []struct {
		Asset  string          `json:"asset"`
		Free   decimal.Decimal `json:"free"`
		Locked decimal.Decimal `json:"locked"`
	} `json:"balances"`
}

// exchangeInfo is the subset of GET /api/v3/exchangeInfo?symbol=X the bot
// reads.
type exchangeInfo struct {
	Symbols []struct {
		Symbol  string         `json:"symbol"`
		Filters []symbolFilter `json:"filters"`
	} `json:"symbols"`
}

type symbolFilter struct {
	FilterType string          `json:"filterType"`
	MinQty     decimal.Decimal `json:"minQty"`
	StepSize   decimal.Decimal `json:"stepSize"`
}

// orderResponse is the FULL response of POST /api/v3/order.
type orderResponse struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	Status              string          `json:"status"`
	Side                string          `json:"side"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
}

func (r orderResponse) toDomain() domain.OrderFill {
	return domain.OrderFill{
		OrderID:     fmt.Sprintf("%d", r.OrderID),
		Symbol:      r.Symbol,
		Side:        domain.OrderSide(r.Side),
		ExecutedQty: r.ExecutedQty,
		QuoteQty:    r.CummulativeQuoteQty,
		Status:      r.Status,
	}
}

// APIError is a non-2xx response from the exchange. It matches
// domain.ErrProvider with errors.Is.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: HTTP %d: %s (code %d)", e.Status, e.Msg, e.Code)
}

func (e *APIError) Unwrap() error { return domain.ErrProvider }

// Temporary reports whether repeating the request may succeed: rate limits,
// IP bans that lift, and server-side failures.
func (e *APIError) Temporary() bool {
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status == http.StatusTeapot:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}
