// Package executor bounds every exchange call with a timeout and retries the
// idempotent ones.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// GuardedProvider decorates a domain.MarketProvider. Reads are retried
// under the policy; market orders are sent exactly once, since a repeated
// order could fill twice.
type GuardedProvider struct {
	inner       domain.MarketProvider
	callTimeout time.Duration
	policy      RetryPolicy
	logger      *slog.Logger
}

// NewGuardedProvider wraps inner. A zero callTimeout disables the per-call
// deadline.
func NewGuardedProvider(inner domain.MarketProvider, callTimeout time.Duration, policy RetryPolicy, logger *slog.Logger) *GuardedProvider {
	return &GuardedProvider{
		inner:       inner,
		callTimeout: callTimeout,
		policy:      policy,
		logger:      logger.With(slog.String("component", "guarded_provider")),
	}
}

// FreeBalance implements domain.MarketProvider.
func (g *GuardedProvider) FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return guardedRead(ctx, g, "free_balance", func(ctx context.Context) (decimal.Decimal, error) {
		return g.inner.FreeBalance(ctx, asset)
	})
}

// Tickers implements domain.MarketProvider.
func (g *GuardedProvider) Tickers(ctx context.Context) (domain.MarketSnapshot, error) {
	return guardedRead(ctx, g, "tickers", g.inner.Tickers)
}

// SpotPrice implements domain.MarketProvider.
func (g *GuardedProvider) SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return guardedRead(ctx, g, "spot_price", func(ctx context.Context) (decimal.Decimal, error) {
		return g.inner.SpotPrice(ctx, symbol)
	})
}

// LotSize implements domain.MarketProvider.
func (g *GuardedProvider) LotSize(ctx context.Context, symbol string) (domain.LotSize, error) {
	return guardedRead(ctx, g, "lot_size", func(ctx context.Context) (domain.LotSize, error) {
		return g.inner.LotSize(ctx, symbol)
	})
}

// MarketBuy implements domain.MarketProvider. It is never retried.
func (g *GuardedProvider) MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.inner.MarketBuy(ctx, symbol, qty)
}

// MarketSell implements domain.MarketProvider. It is never retried.
func (g *GuardedProvider) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.inner.MarketSell(ctx, symbol, qty)
}

func (g *GuardedProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.callTimeout)
}

func guardedRead[T any](ctx context.Context, g *GuardedProvider, op string, call func(context.Context) (T, error)) (T, error) {
	return Do(ctx, g.policy, func(ctx context.Context) (T, error) {
		callCtx, cancel := g.withTimeout(ctx)
		defer cancel()
		return call(callCtx)
	}, func(err error, wait time.Duration) {
		g.logger.WarnContext(ctx, "provider call failed, retrying",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.Duration("backoff", wait),
		)
	})
}
