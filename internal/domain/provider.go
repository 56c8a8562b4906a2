package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketProvider is the market-data and order-execution collaborator. All
// amounts are decimal; quantities must respect the symbol's LotSize or the
// exchange rejects the order.
type MarketProvider interface {
	FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	Tickers(ctx context.Context) (MarketSnapshot, error)
	SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	LotSize(ctx context.Context, symbol string) (LotSize, error)
	MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (OrderFill, error)
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (OrderFill, error)
}
