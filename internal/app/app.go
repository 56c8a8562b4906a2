// Package app wires the trading loop together and supervises it alongside
// the optional status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/momentumbot/internal/config"
	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/engine"
	"github.com/alanyoungcy/momentumbot/internal/executor"
	"github.com/alanyoungcy/momentumbot/internal/server"
	"github.com/alanyoungcy/momentumbot/internal/server/handler"
	"github.com/alanyoungcy/momentumbot/internal/service"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger and
// the cleanup functions run in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies, restores persisted state and runs the engine
// until ctx is cancelled. Failing to load state is fatal: the bot refuses
// to trade without knowing its open positions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Trading.Mode),
		slog.String("store", a.cfg.Store.Backend),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var lease domain.Lease
	if deps.LockManager != nil {
		lease, err = deps.LockManager.Acquire(ctx, a.cfg.Redis.LockKey, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another instance is running (%s): %w", a.cfg.Redis.LockKey, err)
			}
			return fmt.Errorf("app: acquire runner lease: %w", err)
		}
		a.closers = append(a.closers, lease.Release)
	}

	eng, positions, err := a.build(ctx, deps, lease)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, eng, positions)
	}
	return g.Wait()
}

// build assembles the services and the engine and restores their state.
func (a *App) build(ctx context.Context, deps *Dependencies, lease domain.Lease) (*engine.Engine, *service.PositionService, error) {
	cfg := a.cfg

	memory := service.NewMemoryStore(deps.WeightStore)
	risk := service.NewRiskService(decimal.NewFromFloat(cfg.Trading.CapitalFraction))
	selector := service.NewSelector(service.SelectorConfig{
		QuoteAsset:     cfg.Trading.QuoteAsset,
		Denylist:       cfg.Trading.Denylist,
		MinChangePct:   decimal.NewFromFloat(cfg.Trading.MinChangePct),
		MinQuoteVolume: decimal.NewFromFloat(cfg.Trading.MinQuoteVolume),
	})
	positions := service.NewPositionService(
		deps.Provider, deps.PositionStore, memory, risk, deps.Notifier, deps.EventBus,
		service.PositionConfig{
			Rules: service.ExitRules{
				TakeProfit: decimal.NewFromFloat(cfg.Trading.TakeProfit),
				StopLoss:   decimal.NewFromFloat(cfg.Trading.StopLoss),
				MaxHold:    cfg.Trading.MaxHold.Duration,
			},
			QuoteAsset:    cfg.Trading.QuoteAsset,
			EventsChannel: cfg.Redis.EventsChannel,
		},
		a.logger,
	)
	reports := service.NewReportService(positions, deps.Notifier, service.ReportConfig{
		At:         cfg.Summary.Time,
		Scope:      cfg.Summary.Scope,
		Location:   cfg.Location(),
		QuoteAsset: cfg.Trading.QuoteAsset,
	}, a.logger)

	if err := memory.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("app: restore weights: %w", err)
	}
	if err := positions.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("app: restore positions: %w", err)
	}
	open := positions.OpenPositions()
	if deps.Paper != nil {
		for _, p := range open {
			deps.Paper.Deposit(strings.TrimSuffix(p.Symbol, cfg.Trading.QuoteAsset), p.Quantity)
		}
	}
	a.logger.InfoContext(ctx, "state restored",
		slog.Int("positions", len(positions.Positions())),
		slog.Int("open", len(open)),
		slog.Int("weights", len(memory.Snapshot())),
	)

	eng := engine.New(engine.Deps{
		Provider:  deps.Provider,
		Selector:  selector,
		Risk:      risk,
		Positions: positions,
		Memory:    memory,
		Reports:   reports,
		Notifier:  deps.Notifier,
		Lease:     lease,
	}, engine.Config{
		Interval:   cfg.Trading.Interval.Duration,
		QuoteAsset: cfg.Trading.QuoteAsset,
		SaveRetry: executor.RetryPolicy{
			MaxRetries:     cfg.Store.SaveRetries,
			InitialBackoff: cfg.Provider.InitialBackoff.Duration,
			MaxBackoff:     cfg.Provider.MaxBackoff.Duration,
		},
	}, a.logger)

	return eng, positions, nil
}

// startHTTPServer runs the status server in g and shuts it down once ctx is
// done.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, eng *engine.Engine, positions *service.PositionService) {
	// three missed ticks means the loop is stuck
	stale := 3*a.cfg.Trading.Interval.Duration + a.cfg.Provider.CallTimeout.Duration

	srv := server.NewServer(server.Config{
		Port:   a.cfg.Server.Port,
		APIKey: a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(eng, stale),
		Status:    handler.NewStatusHandler(eng, a.cfg.Trading.Mode),
		Positions: handler.NewPositionHandler(positions),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe
// to call more than once.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
