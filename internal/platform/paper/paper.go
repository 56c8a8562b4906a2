// Package paper simulates order execution against live market data.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// MarketData is the read-only half of domain.MarketProvider.
type MarketData interface {
	Tickers(ctx context.Context) (domain.MarketSnapshot, error)
	SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	LotSize(ctx context.Context, symbol string) (domain.LotSize, error)
}

// Exchange implements domain.MarketProvider with virtual balances. Market
// orders fill in full at the current spot price.
type Exchange struct {
	market     MarketData
	quoteAsset string
	logger     *slog.Logger

	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// New creates a paper exchange funded with initialBalance of quoteAsset.
func New(market MarketData, quoteAsset string, initialBalance decimal.Decimal, logger *slog.Logger) *Exchange {
	return &Exchange{
		market:     market,
		quoteAsset: quoteAsset,
		logger:     logger.With(slog.String("component", "paper_exchange")),
		balances:   map[string]decimal.Decimal{quoteAsset: initialBalance},
	}
}

// Deposit adds amount of asset to the virtual account.
func (e *Exchange) Deposit(asset string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[asset] = e.balances[asset].Add(amount)
}

// FreeBalance returns the virtual balance of asset.
func (e *Exchange) FreeBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[asset], nil
}

// Tickers delegates to the live market data source.
func (e *Exchange) Tickers(ctx context.Context) (domain.MarketSnapshot, error) {
	return e.market.Tickers(ctx)
}

// SpotPrice delegates to the live market data source.
func (e *Exchange) SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return e.market.SpotPrice(ctx, symbol)
}

// LotSize delegates to the live market data source.
func (e *Exchange) LotSize(ctx context.Context, symbol string) (domain.LotSize, error) {
	return e.market.LotSize(ctx, symbol)
}

// MarketBuy debits qty x price of the quote asset and credits qty of the
// base asset.
func (e *Exchange) MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	return e.execute(ctx, symbol, domain.OrderSideBuy, qty)
}

// MarketSell debits qty of the base asset and credits qty x price of the
// quote asset.
func (e *Exchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	return e.execute(ctx, symbol, domain.OrderSideSell, qty)
}

func (e *Exchange) execute(ctx context.Context, symbol string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderFill, error) {
	base, ok := strings.CutSuffix(symbol, e.quoteAsset)
	if !ok || base == "" {
		return domain.OrderFill{}, fmt.Errorf("paper: %s is not quoted in %s: %w", symbol, e.quoteAsset, domain.ErrProvider)
	}
	if !qty.IsPositive() {
		return domain.OrderFill{}, fmt.Errorf("paper: quantity must be positive: %w", domain.ErrProvider)
	}

	price, err := e.market.SpotPrice(ctx, symbol)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("paper: price %s: %w", symbol, err)
	}
	cost := qty.Mul(price)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch side {
	case domain.OrderSideBuy:
		have := e.balances[e.quoteAsset]
		if have.LessThan(cost) {
			return domain.OrderFill{}, fmt.Errorf("paper: insufficient %s balance: need %s, have %s: %w",
				e.quoteAsset, cost, have, domain.ErrProvider)
		}
		e.balances[e.quoteAsset] = have.Sub(cost)
		e.balances[base] = e.balances[base].Add(qty)
	default:
		have := e.balances[base]
		if have.LessThan(qty) {
			return domain.OrderFill{}, fmt.Errorf("paper: insufficient %s balance: need %s, have %s: %w",
				base, qty, have, domain.ErrProvider)
		}
		e.balances[base] = have.Sub(qty)
		e.balances[e.quoteAsset] = e.balances[e.quoteAsset].Add(cost)
	}

	fill := domain.OrderFill{
		OrderID:     uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		ExecutedQty: qty,
		QuoteQty:    cost,
		Status:      "FILLED",
	}
	e.logger.InfoContext(ctx, "paper order filled",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("qty", qty.String()),
		slog.String("price", price.String()),
	)
	return fill, nil
}
