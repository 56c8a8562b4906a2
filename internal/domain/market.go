package domain

import "github.com/shopspring/decimal"

// Ticker is one symbol's rolling-window statistics as reported by the
// exchange. A tick's MarketSnapshot is the full list in provider order.
type Ticker struct {
	Symbol             string
	PriceChangePercent decimal.Decimal
	QuoteVolume        decimal.Decimal
	LastPrice          decimal.Decimal
}

// MarketSnapshot is the transient per-tick view of all tickers.
type MarketSnapshot []Ticker

// LotSize holds the exchange's quantity constraints for a symbol.
type LotSize struct {
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}
