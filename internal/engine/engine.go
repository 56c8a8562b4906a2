// Package engine runs the trading cycle: one tick per interval, each tick
// reporting, entering, exiting and persisting in a fixed order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/executor"
	"github.com/alanyoungcy/momentumbot/internal/notify"
	"github.com/alanyoungcy/momentumbot/internal/service"
)

// persistTimeout bounds the saves at the end of a tick. They run detached
// from the tick context so a shutdown mid-tick still records what happened.
const persistTimeout = 30 * time.Second

// Config holds the engine parameters.
type Config struct {
	Interval   time.Duration
	QuoteAsset string
	SaveRetry  executor.RetryPolicy
}

// Deps are the collaborators driven by the engine. Lease may be nil.
type Deps struct {
	Provider  domain.MarketProvider
	Selector  *service.Selector
	Risk      *service.RiskService
	Positions *service.PositionService
	Memory    *service.MemoryStore
	Reports   *service.ReportService
	Notifier  service.Notifier
	Lease     domain.Lease
}

// Status is an immutable record of the last completed tick.
type Status struct {
	Tick           uint64                `json:"tick"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
	Balance        decimal.Decimal       `json:"balance"`
	Capital        decimal.Decimal       `json:"capital"`
	Candidates     int                   `json:"candidates"`
	TopCandidate   string                `json:"top_candidate,omitempty"`
	Opened         *domain.Position      `json:"opened,omitempty"`
	Closed         []domain.Position     `json:"closed"`
	SummarySent    bool                  `json:"summary_sent"`
	OpenPositions  []domain.Position     `json:"open_positions"`
	Weights        []domain.SymbolWeight `json:"weights"`
	RealizedProfit decimal.Decimal       `json:"realized_profit"`
	Errors         []string              `json:"errors,omitempty"`
}

// Engine is the cycle scheduler. Ticks start on a fixed Interval and never
// overlap.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	ticks  uint64
	status atomic.Pointer[Status]
}

// New creates an Engine.
func New(deps Deps, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
	}
}

// Status returns the snapshot of the last completed tick, or nil before the
// first one.
func (e *Engine) Status() *Status {
	return e.status.Load()
}

// Run ticks immediately and then on a fixed Interval grid until ctx is
// cancelled. A tick that overruns the interval delays the next one instead
// of overlapping it; missed grid points are dropped. Run returns an error
// only when the single-runner lease is lost.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "engine started",
		slog.Duration("interval", e.cfg.Interval),
		slog.String("quote_asset", e.cfg.QuoteAsset),
	)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		e.Tick(ctx)
		if err := e.refreshLease(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	e.logger.InfoContext(ctx, "engine stopped")
	return nil
}

func (e *Engine) refreshLease(ctx context.Context) error {
	if e.deps.Lease == nil || ctx.Err() != nil {
		return nil
	}
	err := e.deps.Lease.Refresh(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrLockHeld):
		e.reportError(ctx, "Runner lease lost", err)
		return fmt.Errorf("engine: refresh lease: %w", err)
	default:
		e.logger.WarnContext(ctx, "lease refresh failed", slog.String("error", err.Error()))
		return nil
	}
}

// Tick runs one cycle and publishes its Status.
func (e *Engine) Tick(ctx context.Context) Status {
	e.ticks++
	st := Status{Tick: e.ticks, StartedAt: e.now(), Closed: []domain.Position{}}
	log := e.logger.With(slog.Uint64("tick", st.Tick))

	// (a) daily summary
	st.SummarySent = e.deps.Reports.MaybeSend(ctx, st.StartedAt)

	// (b)+(c) one entry on the best candidate
	if ctx.Err() == nil {
		if opened, err := e.enter(ctx, &st); err != nil {
			st.Errors = append(st.Errors, err.Error())
			if !errors.Is(err, domain.ErrInsufficientQuantity) {
				log.WarnContext(ctx, "entry skipped", slog.String("error", err.Error()))
			}
		} else if opened != nil {
			st.Opened = opened
		}
	}

	// (d) exits
	if ctx.Err() == nil {
		st.Closed = append(st.Closed, e.deps.Positions.EvaluateExits(ctx)...)
	}

	// (e)+(f) persistence
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if st.Opened != nil || len(st.Closed) > 0 {
		if err := e.persist(pctx, "position history", e.deps.Positions.Save); err != nil {
			st.Errors = append(st.Errors, err.Error())
		}
	}
	if err := e.persist(pctx, "symbol weights", e.deps.Memory.Save); err != nil {
		st.Errors = append(st.Errors, err.Error())
	}

	st.FinishedAt = e.now()
	st.OpenPositions = e.deps.Positions.OpenPositions()
	st.Weights = e.deps.Memory.Snapshot()
	st.RealizedProfit = e.deps.Positions.RealizedProfit()
	e.status.Store(&st)

	log.InfoContext(ctx, "tick complete",
		slog.Int("candidates", st.Candidates),
		slog.Bool("opened", st.Opened != nil),
		slog.Int("closed", len(st.Closed)),
		slog.Int("open", len(st.OpenPositions)),
		slog.Duration("took", st.FinishedAt.Sub(st.StartedAt)),
	)
	return st
}

func (e *Engine) enter(ctx context.Context, st *Status) (*domain.Position, error) {
	balance, err := e.deps.Provider.FreeBalance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("engine: free balance: %w", err)
	}
	st.Balance = balance
	st.Capital = e.deps.Risk.Capital(balance)

	snapshot, err := e.deps.Provider.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: tickers: %w", err)
	}

	candidates := e.deps.Selector.Select(snapshot, e.deps.Memory)
	st.Candidates = len(candidates)
	if len(candidates) == 0 {
		return nil, nil
	}
	st.TopCandidate = candidates[0].Symbol

	pos, err := e.deps.Positions.Open(ctx, candidates[0].Symbol, st.Capital)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (e *Engine) persist(ctx context.Context, what string, save func(context.Context) error) error {
	_, err := executor.Do(ctx, e.cfg.SaveRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, save(ctx)
	}, func(err error, wait time.Duration) {
		e.logger.WarnContext(ctx, "save failed, retrying",
			slog.String("what", what),
			slog.String("error", err.Error()),
			slog.Duration("backoff", wait),
		)
	})
	if err != nil {
		err = fmt.Errorf("engine: save %s: %w: %w", what, domain.ErrPersistence, err)
		e.reportError(ctx, "Persistence failure", err)
	}
	return err
}

func (e *Engine) reportError(ctx context.Context, title string, err error) {
	e.logger.ErrorContext(ctx, title, slog.String("error", err.Error()))
	if e.deps.Notifier != nil {
		e.deps.Notifier.Notify(ctx, notify.EventError, title, err.Error())
	}
}
