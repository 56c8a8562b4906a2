package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/executor"
	"github.com/alanyoungcy/momentumbot/internal/notify"
	"github.com/alanyoungcy/momentumbot/internal/service"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type market struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	balErr   error
	delay    time.Duration
	tickers  []domain.Ticker
	prices   map[string]decimal.Decimal
	buys     int
	sells    int
	callsLog []string
}

func (m *market) log(op string) {
	m.mu.Lock()
	m.callsLog = append(m.callsLog, op)
	m.mu.Unlock()
}

func (m *market) FreeBalance(context.Context, string) (decimal.Decimal, error) {
	m.log("balance")
	time.Sleep(m.delay)
	return m.balance, m.balErr
}

func (m *market) Tickers(context.Context) (domain.MarketSnapshot, error) {
	m.log("tickers")
	return m.tickers, nil
}

func (m *market) SpotPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, domain.ErrProvider
	}
	return p, nil
}

func (m *market) LotSize(context.Context, string) (domain.LotSize, error) {
	return domain.LotSize{StepSize: d("0.01"), MinQty: d("0.01")}, nil
}

func (m *market) MarketBuy(_ context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	m.log("buy " + symbol)
	m.buys++
	return domain.OrderFill{Symbol: symbol, ExecutedQty: qty, Status: "FILLED"}, nil
}

func (m *market) MarketSell(_ context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	m.log("sell " + symbol)
	m.sells++
	return domain.OrderFill{Symbol: symbol, ExecutedQty: qty, Status: "FILLED"}, nil
}

type positionStore struct {
	mu        sync.Mutex
	positions []domain.Position
	saves     int
	failures  int
}

func (s *positionStore) Load(context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Position(nil), s.positions...), nil
}

func (s *positionStore) Save(_ context.Context, p []domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	s.positions = append([]domain.Position(nil), p...)
	return nil
}

type weightStore struct {
	mu      sync.Mutex
	weights []domain.SymbolWeight
	saves   int
	fail    bool
}

func (s *weightStore) Load(context.Context) ([]domain.SymbolWeight, error) {
	return append([]domain.SymbolWeight(nil), s.weights...), nil
}

func (s *weightStore) Save(_ context.Context, w []domain.SymbolWeight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.fail {
		return errors.New("disk full")
	}
	s.weights = append([]domain.SymbolWeight(nil), w...)
	return nil
}

type notices struct {
	mu     sync.Mutex
	events []string
}

func (n *notices) Notify(_ context.Context, event, _, _ string) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *notices) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

type fakeLease struct {
	refreshes int
	err       error
}

func (l *fakeLease) Refresh(context.Context) error { l.refreshes++; return l.err }
func (l *fakeLease) Release()                      {}

type harness struct {
	engine    *Engine
	market    *market
	positions *positionStore
	weights   *weightStore
	notices   *notices
	posSvc    *service.PositionService
	memory    *service.MemoryStore
}

func newHarness(t *testing.T, summaryAt string) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		market:    &market{balance: d("1000"), prices: map[string]decimal.Decimal{}},
		positions: &positionStore{},
		weights:   &weightStore{},
		notices:   &notices{},
	}
	h.memory = service.NewMemoryStore(h.weights)
	risk := service.NewRiskService(d("0.30"))
	h.posSvc = service.NewPositionService(h.market, h.positions, h.memory, risk, h.notices, nil,
		service.PositionConfig{
			Rules:      service.ExitRules{TakeProfit: d("0.005"), StopLoss: d("0.03"), MaxHold: 2 * time.Hour},
			QuoteAsset: "USDT",
		}, logger)
	reports := service.NewReportService(h.posSvc, h.notices,
		service.ReportConfig{At: summaryAt, Location: time.UTC, QuoteAsset: "USDT"}, logger)
	selector := service.NewSelector(service.SelectorConfig{
		QuoteAsset:     "USDT",
		MinChangePct:   d("2"),
		MinQuoteVolume: d("500000"),
	})

	h.engine = New(Deps{
		Provider:  h.market,
		Selector:  selector,
		Risk:      risk,
		Positions: h.posSvc,
		Memory:    h.memory,
		Reports:   reports,
		Notifier:  h.notices,
	}, Config{
		Interval:   10 * time.Millisecond,
		QuoteAsset: "USDT",
		SaveRetry:  executor.RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}, logger)
	return h
}

func TestEngine_TickOpensTopCandidateAndPersists(t *testing.T) {
	h := newHarness(t, "00:00")
	h.engine.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	h.market.tickers = []domain.Ticker{
		{Symbol: "AAAUSDT", PriceChangePercent: d("5"), QuoteVolume: d("600000")},
		{Symbol: "ABCUSDT", PriceChangePercent: d("8"), QuoteVolume: d("600000")},
	}
	h.market.prices["ABCUSDT"] = d("50")

	st := h.engine.Tick(context.Background())

	require.NotNil(t, st.Opened)
	assert.Equal(t, "ABCUSDT", st.Opened.Symbol)
	assert.True(t, st.Opened.Quantity.Equal(d("6")))
	assert.True(t, st.Capital.Equal(d("300")))
	assert.Equal(t, 2, st.Candidates)
	assert.Equal(t, 1, h.positions.saves)
	assert.Equal(t, 1, h.weights.saves)
	assert.Len(t, h.positions.positions, 1)
	assert.Equal(t, uint64(1), h.engine.Status().Tick)
}

func TestEngine_StepOrder(t *testing.T) {
	h := newHarness(t, "00:00")
	h.market.tickers = []domain.Ticker{{Symbol: "ABCUSDT", PriceChangePercent: d("8"), QuoteVolume: d("600000")}}
	h.market.prices["ABCUSDT"] = d("50")
	h.positions.positions = []domain.Position{{
		ID: "old", Symbol: "OLDUSDT", EntryPrice: d("100"), Quantity: d("1"), EntryTime: time.Now().Add(-time.Minute),
	}}
	h.market.prices["OLDUSDT"] = d("110")
	require.NoError(t, h.posSvc.Load(context.Background()))

	st := h.engine.Tick(context.Background())
	assert.NotNil(t, st.Opened)
	require.Len(t, st.Closed, 1)
	assert.Equal(t, []string{"balance", "tickers", "buy ABCUSDT", "sell OLDUSDT"}, h.market.callsLog)
	assert.Equal(t, 2, h.memory.Get("OLDUSDT"))
}

func TestEngine_NoActivitySkipsHistorySave(t *testing.T) {
	h := newHarness(t, "00:00")

	st := h.engine.Tick(context.Background())
	assert.Nil(t, st.Opened)
	assert.Empty(t, st.Closed)
	assert.Equal(t, 0, h.positions.saves)
	assert.Equal(t, 1, h.weights.saves, "weights are saved every tick")
}

func TestEngine_BalanceFailureStillEvaluatesExits(t *testing.T) {
	h := newHarness(t, "00:00")
	h.market.balErr = domain.ErrProvider
	h.positions.positions = []domain.Position{{
		ID: "old", Symbol: "OLDUSDT", EntryPrice: d("100"), Quantity: d("1"), EntryTime: time.Now().Add(-time.Minute),
	}}
	h.market.prices["OLDUSDT"] = d("90")
	require.NoError(t, h.posSvc.Load(context.Background()))

	st := h.engine.Tick(context.Background())
	assert.Nil(t, st.Opened)
	assert.Len(t, st.Closed, 1)
	assert.NotEmpty(t, st.Errors)
	assert.Equal(t, 1, h.positions.saves)
}

func TestEngine_PersistenceRetriedThenReported(t *testing.T) {
	h := newHarness(t, "00:00")
	h.weights.fail = true

	st := h.engine.Tick(context.Background())
	assert.Equal(t, 3, h.weights.saves)
	require.Len(t, st.Errors, 1)
	assert.Contains(t, st.Errors[0], "symbol weights")
	assert.Contains(t, h.notices.events, notify.EventError)
}

func TestEngine_PersistenceRecoversWithinRetries(t *testing.T) {
	h := newHarness(t, "00:00")
	h.market.tickers = []domain.Ticker{{Symbol: "ABCUSDT", PriceChangePercent: d("8"), QuoteVolume: d("600000")}}
	h.market.prices["ABCUSDT"] = d("50")
	h.positions.failures = 1

	st := h.engine.Tick(context.Background())
	assert.Empty(t, st.Errors)
	assert.Equal(t, 2, h.positions.saves)
	assert.Len(t, h.positions.positions, 1)
}

func TestEngine_SummaryFirst(t *testing.T) {
	h := newHarness(t, "23:00")
	h.engine.now = func() time.Time { return time.Date(2026, 3, 1, 23, 0, 10, 0, time.UTC) }

	st := h.engine.Tick(context.Background())
	assert.True(t, st.SummarySent)
	require.NotEmpty(t, h.notices.events)
	assert.Equal(t, notify.EventSummary, h.notices.events[0])

	st = h.engine.Tick(context.Background())
	assert.False(t, st.SummarySent)
}

func TestEngine_SummarySentWhenTicksStraddleTheMinute(t *testing.T) {
	h := newHarness(t, "23:00")
	// a 60s interval plus 1.5s of tick work never starts a tick inside 23:00
	starts := []time.Time{
		time.Date(2026, 3, 1, 22, 58, 58, 0, time.UTC),
		time.Date(2026, 3, 1, 22, 59, 59, 500_000_000, time.UTC),
		time.Date(2026, 3, 1, 23, 1, 1, 0, time.UTC),
		time.Date(2026, 3, 1, 23, 2, 2, 500_000_000, time.UTC),
	}
	var sent []bool
	for _, at := range starts {
		h.engine.now = func() time.Time { return at }
		sent = append(sent, h.engine.Tick(context.Background()).SummarySent)
	}

	assert.Equal(t, []bool{false, false, true, false}, sent)
	assert.Equal(t, 1, h.notices.count(notify.EventSummary))
}

func TestEngine_RunKeepsFixedRate(t *testing.T) {
	h := newHarness(t, "00:00")
	h.engine.cfg.Interval = 40 * time.Millisecond
	h.market.delay = 30 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	require.NoError(t, h.engine.Run(ctx))

	// waiting a full interval after each tick would give about 9 ticks
	st := h.engine.Status()
	require.NotNil(t, st)
	assert.GreaterOrEqual(t, st.Tick, uint64(12))
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, "00:00")
	lease := &fakeLease{}
	h.engine.deps.Lease = lease

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := h.engine.Status()
		return st != nil && st.Tick >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_RunStopsWhenLeaseLost(t *testing.T) {
	h := newHarness(t, "00:00")
	h.engine.deps.Lease = &fakeLease{err: domain.ErrLockHeld}

	err := h.engine.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Contains(t, h.notices.events, notify.EventError)
}
