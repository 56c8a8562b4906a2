package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/notify"
)

// Notifier delivers user-visible alerts. Delivery is best effort: the
// implementation logs its own failures and never reports them back into the
// trading path.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string)
}

// ExitRules are the thresholds that close a position.
type ExitRules struct {
	TakeProfit decimal.Decimal // fractional gain, e.g. 0.005
	StopLoss   decimal.Decimal // fractional loss as a positive number, e.g. 0.03
	MaxHold    time.Duration
}

// EvaluateExit decides whether pos should be closed at price. Take profit
// wins over stop loss, and both over the time stop. Bounds are inclusive.
func EvaluateExit(pos domain.Position, price decimal.Decimal, now time.Time, rules ExitRules) (domain.ExitReason, decimal.Decimal, bool) {
	variation := pos.Variation(price)
	switch {
	case variation.GreaterThanOrEqual(rules.TakeProfit):
		return domain.ExitReasonTakeProfit, variation, true
	case variation.LessThanOrEqual(rules.StopLoss.Neg()):
		return domain.ExitReasonStopLoss, variation, true
	case now.Sub(pos.EntryTime) >= rules.MaxHold:
		return domain.ExitReasonTimeStop, variation, true
	default:
		return "", variation, false
	}
}

// PositionConfig holds the PositionService parameters.
type PositionConfig struct {
	Rules         ExitRules
	QuoteAsset    string
	EventsChannel string
}

// PositionService owns the position history and drives each position from
// open to closed, feeding realized outcomes back into the MemoryStore.
type PositionService struct {
	provider domain.MarketProvider
	store    domain.PositionStore
	memory   *MemoryStore
	risk     *RiskService
	notifier Notifier
	bus      domain.EventBus
	cfg      PositionConfig
	logger   *slog.Logger

	now   func() time.Time
	newID func() string

	mu        sync.RWMutex
	positions []domain.Position
}

// NewPositionService creates a PositionService with all required
// dependencies. bus may be nil.
func NewPositionService(
	provider domain.MarketProvider,
	store domain.PositionStore,
	memory *MemoryStore,
	risk *RiskService,
	notifier Notifier,
	bus domain.EventBus,
	cfg PositionConfig,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		provider: provider,
		store:    store,
		memory:   memory,
		risk:     risk,
		notifier: notifier,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "position_service")),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Open sizes and buys symbol with capital and records the new position. It
// returns domain.ErrInsufficientQuantity (after notifying) when capital does
// not cover the lot minimum.
func (s *PositionService) Open(ctx context.Context, symbol string, capital decimal.Decimal) (domain.Position, error) {
	lot, err := s.provider.LotSize(ctx, symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: lot size %s: %w", symbol, err)
	}
	quote, err := s.provider.SpotPrice(ctx, symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: price %s: %w", symbol, err)
	}

	qty, err := s.risk.Size(capital, quote, lot)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientQuantity) {
			s.logger.WarnContext(ctx, "allocation below lot minimum",
				slog.String("symbol", symbol),
				slog.String("capital", capital.String()),
				slog.String("price", quote.String()),
				slog.String("min_qty", lot.MinQty.String()),
			)
			s.notify(ctx, notify.EventAllocationFailed, "Cannot buy",
				fmt.Sprintf("Cannot buy %s: quantity below minimum %s (capital %s %s)",
					symbol, lot.MinQty, capital.StringFixed(2), s.cfg.QuoteAsset))
		}
		return domain.Position{}, fmt.Errorf("position_service: size %s: %w", symbol, err)
	}

	fill, err := s.provider.MarketBuy(ctx, symbol, qty)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: buy %s: %w", symbol, err)
	}
	if !fill.ExecutedQty.IsPositive() {
		return domain.Position{}, fmt.Errorf("position_service: buy %s: nothing executed (status %s): %w",
			symbol, fill.Status, domain.ErrProvider)
	}

	// The order has filled; a failed read-back must not lose the position.
	entry, err := s.provider.SpotPrice(ctx, symbol)
	if err != nil {
		entry = fill.AvgPrice()
		if !entry.IsPositive() {
			entry = quote
		}
		s.logger.WarnContext(ctx, "entry price read-back failed, using fill price",
			slog.String("symbol", symbol),
			slog.String("entry_price", entry.String()),
			slog.String("error", err.Error()),
		)
	}

	pos := domain.Position{
		ID:         s.newID(),
		Symbol:     symbol,
		EntryPrice: entry,
		Quantity:   fill.ExecutedQty,
		EntryTime:  s.now(),
	}

	s.mu.Lock()
	s.positions = append(s.positions, pos)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", symbol),
		slog.String("entry_price", entry.String()),
		slog.String("quantity", pos.Quantity.String()),
		slog.String("order_id", fill.OrderID),
	)
	s.notify(ctx, notify.EventBuy, "Buy",
		fmt.Sprintf("Buy: %s\nPrice: %s %s\nQuantity: %s", symbol, entry.StringFixed(4), s.cfg.QuoteAsset, pos.Quantity))
	s.publish(ctx, "position_opened", pos)

	return pos, nil
}

// EvaluateExits checks every open position, in recorded order, against the
// exit rules and sells those that trigger. It returns the positions closed
// during this call. A position whose price cannot be read, or whose sell
// fails, stays open for the next call.
func (s *PositionService) EvaluateExits(ctx context.Context) []domain.Position {
	var closed []domain.Position

	for _, pos := range s.OpenPositions() {
		if ctx.Err() != nil {
			break
		}

		price, err := s.provider.SpotPrice(ctx, pos.Symbol)
		if err != nil {
			s.logger.WarnContext(ctx, "price read failed, skipping position",
				slog.String("position_id", pos.ID),
				slog.String("symbol", pos.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		now := s.now()
		reason, variation, exit := EvaluateExit(pos, price, now, s.cfg.Rules)
		if !exit {
			continue
		}

		if _, err := s.provider.MarketSell(ctx, pos.Symbol, pos.Quantity); err != nil {
			s.logger.ErrorContext(ctx, "sell failed, position stays open",
				slog.String("position_id", pos.ID),
				slog.String("symbol", pos.Symbol),
				slog.String("reason", string(reason)),
				slog.String("error", err.Error()),
			)
			s.notify(ctx, notify.EventError, "Sell failed",
				fmt.Sprintf("Sell of %s failed (%s): %v", pos.Symbol, reason, err))
			continue
		}

		done := pos.Close(price, now, reason)
		if !s.replace(done) {
			continue
		}
		closed = append(closed, done)

		delta := -1
		if variation.IsPositive() {
			delta = 1
		}
		weight := s.memory.Adjust(pos.Symbol, delta)

		s.logger.InfoContext(ctx, "position closed",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.String("reason", string(reason)),
			slog.String("exit_price", price.String()),
			slog.String("variation", variation.String()),
			slog.Int("weight", weight),
		)

		// zero variation lowers the weight but is worded as a profit
		outcome := "Loss"
		if !variation.IsNegative() {
			outcome = "Profit"
		}
		s.notify(ctx, notify.EventSell, outcome,
			fmt.Sprintf("%s on %s\nSell price: %s %s\nVariation: %s%%",
				outcome, pos.Symbol, price.StringFixed(4), s.cfg.QuoteAsset, variation.Mul(decimal.NewFromInt(100)).StringFixed(2)))
		s.publish(ctx, "position_closed", done)
	}

	return closed
}

// Positions returns a copy of the full history in recorded order.
func (s *PositionService) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// OpenPositions returns the positions still awaiting an exit.
func (s *PositionService) OpenPositions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

// RealizedProfit sums (exit - entry) x quantity over every closed position.
func (s *PositionService) RealizedProfit() decimal.Decimal {
	return RealizedProfit(s.Positions(), nil)
}

// RealizedProfit sums the realized PnL of positions accepted by keep; a nil
// keep accepts every position with an exit price.
func RealizedProfit(positions []domain.Position, keep func(domain.Position) bool) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if keep != nil && !keep(p) {
			continue
		}
		if pnl, ok := p.RealizedPnL(); ok {
			total = total.Add(pnl)
		}
	}
	return total
}

// Load replaces the in-memory history with the persisted one.
func (s *PositionService) Load(ctx context.Context) error {
	positions, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("position_service: load history: %w", err)
	}
	for i := range positions {
		if positions[i].ID == "" {
			positions[i].ID = s.newID()
		}
	}
	s.mu.Lock()
	s.positions = positions
	s.mu.Unlock()
	return nil
}

// Save writes the full history.
func (s *PositionService) Save(ctx context.Context) error {
	if err := s.store.Save(ctx, s.Positions()); err != nil {
		return fmt.Errorf("position_service: save history: %w", err)
	}
	return nil
}

// replace swaps in the closed copy of an open position. It reports false if
// the position is unknown or already closed.
func (s *PositionService) replace(closed domain.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		if s.positions[i].ID == closed.ID && s.positions[i].IsOpen() {
			s.positions[i] = closed
			return true
		}
	}
	return false
}

func (s *PositionService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event, title, message)
}

func (s *PositionService) publish(ctx context.Context, event string, pos domain.Position) {
	if s.bus == nil || s.cfg.EventsChannel == "" {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":    event,
		"position": pos,
	})
	if err := s.bus.Publish(ctx, s.cfg.EventsChannel, evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
