package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/notify"
)

var defaultRules = ExitRules{
	TakeProfit: d("0.005"),
	StopLoss:   d("0.03"),
	MaxHold:    2 * time.Hour,
}

type positionHarness struct {
	svc      *PositionService
	provider *fakeProvider
	store    *memPositionStore
	memory   *MemoryStore
	notifier *recordingNotifier
	bus      *recordingBus
	clock    time.Time
}

func newPositionHarness(t *testing.T) *positionHarness {
	t.Helper()
	h := &positionHarness{
		provider: newFakeProvider(),
		store:    &memPositionStore{},
		memory:   NewMemoryStore(&memWeightStore{}),
		notifier: &recordingNotifier{},
		bus:      &recordingBus{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = NewPositionService(h.provider, h.store, h.memory, NewRiskService(d("0.30")), h.notifier, h.bus,
		PositionConfig{Rules: defaultRules, QuoteAsset: "USDT", EventsChannel: "positions"}, discardLogger())
	h.svc.now = func() time.Time { return h.clock }
	n := 0
	h.svc.newID = func() string { n++; return fmt.Sprintf("pos-%d", n) }
	return h
}

func openPosition(symbol, entry string, at time.Time) domain.Position {
	return domain.Position{ID: symbol + "-id", Symbol: symbol, EntryPrice: d(entry), Quantity: d("2"), EntryTime: at}
}

func TestEvaluateExit(t *testing.T) {
	entry := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pos := openPosition("AAAUSDT", "100", entry)

	tests := []struct {
		name   string
		price  string
		now    time.Time
		reason domain.ExitReason
		exit   bool
	}{
		{"take profit exactly", "100.5", entry.Add(time.Minute), domain.ExitReasonTakeProfit, true},
		{"just below take profit", "100.49", entry.Add(time.Minute), "", false},
		{"stop loss exactly", "97", entry.Add(time.Minute), domain.ExitReasonStopLoss, true},
		{"just above stop loss", "97.01", entry.Add(time.Minute), "", false},
		{"time stop exactly", "100", entry.Add(2 * time.Hour), domain.ExitReasonTimeStop, true},
		{"just before time stop", "100", entry.Add(2*time.Hour - time.Second), "", false},
		{"profit beats time", "101", entry.Add(3 * time.Hour), domain.ExitReasonTakeProfit, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, _, exit := EvaluateExit(pos, d(tt.price), tt.now, defaultRules)
			assert.Equal(t, tt.exit, exit)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPositionService_Open(t *testing.T) {
	h := newPositionHarness(t)
	// pre-trade quote, then read-back after the buy
	h.provider.setPrice("ABCUSDT", "50", "50.1")

	pos, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.NoError(t, err)

	assert.Equal(t, "pos-1", pos.ID)
	assert.True(t, pos.Quantity.Equal(d("6")))
	assert.True(t, pos.EntryPrice.Equal(d("50.1")), "entry is the read-back price")
	assert.Equal(t, h.clock, pos.EntryTime)
	assert.True(t, pos.IsOpen())
	require.Len(t, h.provider.buys, 1)
	assert.Equal(t, []string{notify.EventBuy}, h.notifier.events())
	require.Len(t, h.bus.payloads, 1)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(h.bus.payloads[0], &evt))
	assert.Equal(t, "position_opened", evt["event"])

	assert.Len(t, h.svc.Positions(), 1)
	assert.Len(t, h.svc.OpenPositions(), 1)
}

func TestPositionService_OpenReadBackFails(t *testing.T) {
	h := newPositionHarness(t)
	h.provider.setPrice("ABCUSDT", "50")
	h.svc.provider = &readBackFailer{fakeProvider: h.provider}

	pos, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.NoError(t, err)
	assert.True(t, pos.EntryPrice.Equal(d("50")))
}

func TestPositionService_OpenReadBackFailsUsesFillAverage(t *testing.T) {
	h := newPositionHarness(t)
	h.provider.setPrice("ABCUSDT", "50")
	h.provider.buyFill = &domain.OrderFill{OrderID: "b", Symbol: "ABCUSDT", Side: domain.OrderSideBuy,
		ExecutedQty: d("6"), QuoteQty: d("301.2"), Status: "FILLED"}
	h.svc.provider = &readBackFailer{fakeProvider: h.provider}

	pos, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.NoError(t, err)
	assert.True(t, pos.EntryPrice.Equal(d("50.2")), "got %s", pos.EntryPrice)
}

type readBackFailer struct {
	*fakeProvider
	calls int
}

func (r *readBackFailer) SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	r.calls++
	if r.calls > 1 {
		return decimal.Zero, errors.New("timeout")
	}
	return r.fakeProvider.SpotPrice(ctx, symbol)
}

func TestPositionService_OpenInsufficientQuantity(t *testing.T) {
	h := newPositionHarness(t)
	h.provider.setPrice("ABCUSDT", "50")
	h.provider.lots["ABCUSDT"] = domain.LotSize{StepSize: d("1"), MinQty: d("10")}

	_, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.ErrorIs(t, err, domain.ErrInsufficientQuantity)
	assert.Empty(t, h.provider.buys)
	assert.Empty(t, h.svc.Positions())
	assert.Equal(t, []string{notify.EventAllocationFailed}, h.notifier.events())
}

func TestPositionService_OpenBuyFails(t *testing.T) {
	h := newPositionHarness(t)
	h.provider.setPrice("ABCUSDT", "50")
	h.provider.buyErr = fmt.Errorf("rejected: %w", domain.ErrProvider)

	_, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.ErrorIs(t, err, domain.ErrProvider)
	assert.Empty(t, h.svc.Positions())
}

func TestPositionService_OpenZeroFill(t *testing.T) {
	h := newPositionHarness(t)
	h.provider.setPrice("ABCUSDT", "50")
	h.provider.buyFill = &domain.OrderFill{Status: "EXPIRED", ExecutedQty: d("0")}

	_, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.ErrorIs(t, err, domain.ErrProvider)
	assert.Empty(t, h.svc.Positions())
}

func TestPositionService_ProfitExit(t *testing.T) {
	h := newPositionHarness(t)
	h.store.positions = []domain.Position{openPosition("AAAUSDT", "100", h.clock.Add(-time.Minute))}
	require.NoError(t, h.svc.Load(context.Background()))
	h.provider.setPrice("AAAUSDT", "100.5")

	closed := h.svc.EvaluateExits(context.Background())
	require.Len(t, closed, 1)

	got := closed[0]
	assert.False(t, got.IsOpen())
	assert.Equal(t, domain.ExitReasonTakeProfit, got.ExitReason)
	require.NotNil(t, got.ExitPrice)
	assert.True(t, got.ExitPrice.Equal(d("100.5")))
	assert.Equal(t, h.clock, *got.ExitTime)
	assert.Equal(t, 2, h.memory.Get("AAAUSDT"))
	assert.Equal(t, []string{notify.EventSell}, h.notifier.events())
	assert.Equal(t, "Profit", h.notifier.sent[0].title)
	assert.Contains(t, h.notifier.sent[0].message, "Variation: 0.50%")
	assert.Empty(t, h.svc.OpenPositions())
	assert.True(t, h.svc.RealizedProfit().Equal(d("1")))
}

func TestPositionService_StopExit(t *testing.T) {
	h := newPositionHarness(t)
	h.store.positions = []domain.Position{openPosition("AAAUSDT", "100", h.clock.Add(-time.Minute))}
	require.NoError(t, h.svc.Load(context.Background()))
	h.provider.setPrice("AAAUSDT", "97")

	closed := h.svc.EvaluateExits(context.Background())
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitReasonStopLoss, closed[0].ExitReason)
	assert.Equal(t, 0, h.memory.Get("AAAUSDT"))
	assert.Equal(t, "Loss", h.notifier.sent[0].title)
}

func TestPositionService_TimeExitAtZeroVariationLowersWeight(t *testing.T) {
	h := newPositionHarness(t)
	h.store.positions = []domain.Position{openPosition("AAAUSDT", "100", h.clock.Add(-2*time.Hour))}
	require.NoError(t, h.svc.Load(context.Background()))
	h.provider.setPrice("AAAUSDT", "100")

	closed := h.svc.EvaluateExits(context.Background())
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitReasonTimeStop, closed[0].ExitReason)
	assert.Equal(t, 0, h.memory.Get("AAAUSDT"), "zero variation counts against the symbol")
	assert.Equal(t, "Profit", h.notifier.sent[0].title, "break-even is worded as a profit")
	assert.Contains(t, h.notifier.sent[0].message, "Variation: 0.00%")
}

func TestPositionService_SellFailureKeepsPositionOpen(t *testing.T) {
	h := newPositionHarness(t)
	h.store.positions = []domain.Position{openPosition("AAAUSDT", "100", h.clock.Add(-time.Minute))}
	require.NoError(t, h.svc.Load(context.Background()))
	h.provider.setPrice("AAAUSDT", "97")
	h.provider.sellErr = domain.ErrProvider

	closed := h.svc.EvaluateExits(context.Background())
	assert.Empty(t, closed)
	assert.Len(t, h.svc.OpenPositions(), 1)
	assert.Equal(t, 1, h.memory.Get("AAAUSDT"))
	assert.Equal(t, []string{notify.EventError}, h.notifier.events())

	// retried on the next evaluation
	h.provider.sellErr = nil
	closed = h.svc.EvaluateExits(context.Background())
	assert.Len(t, closed, 1)
	assert.Equal(t, 0, h.memory.Get("AAAUSDT"))
}

func TestPositionService_PriceFailureSkipsOnlyThatPosition(t *testing.T) {
	h := newPositionHarness(t)
	h.store.positions = []domain.Position{
		openPosition("AAAUSDT", "100", h.clock.Add(-time.Minute)),
		openPosition("BBBUSDT", "100", h.clock.Add(-time.Minute)),
	}
	require.NoError(t, h.svc.Load(context.Background()))
	h.provider.priceErr["AAAUSDT"] = domain.ErrProvider
	h.provider.setPrice("BBBUSDT", "101")

	closed := h.svc.EvaluateExits(context.Background())
	require.Len(t, closed, 1)
	assert.Equal(t, "BBBUSDT", closed[0].Symbol)
	assert.Len(t, h.svc.OpenPositions(), 1)
}

func TestPositionService_ClosedPositionsAreNeverReevaluated(t *testing.T) {
	h := newPositionHarness(t)
	exit := d("120")
	exitAt := h.clock.Add(-time.Hour)
	closedPos := openPosition("AAAUSDT", "100", h.clock.Add(-3*time.Hour))
	closedPos = closedPos.Close(exit, exitAt, domain.ExitReasonTakeProfit)
	h.store.positions = []domain.Position{closedPos}
	require.NoError(t, h.svc.Load(context.Background()))
	h.provider.setPrice("AAAUSDT", "50")

	for i := 0; i < 3; i++ {
		assert.Empty(t, h.svc.EvaluateExits(context.Background()))
	}
	assert.Equal(t, 1, h.memory.Get("AAAUSDT"), "weight is not re-applied on reload")
	got := h.svc.Positions()[0]
	assert.True(t, got.ExitPrice.Equal(exit))
	assert.Equal(t, exitAt, *got.ExitTime)
	assert.Empty(t, h.provider.sells)
}

func TestPositionService_SaveRoundTrip(t *testing.T) {
	h := newPositionHarness(t)
	h.provider.setPrice("ABCUSDT", "50")
	_, err := h.svc.Open(context.Background(), "ABCUSDT", d("300"))
	require.NoError(t, err)
	require.NoError(t, h.svc.Save(context.Background()))
	require.Len(t, h.store.positions, 1)

	other := newPositionHarness(t)
	other.store = h.store
	other.svc.store = h.store
	require.NoError(t, other.svc.Load(context.Background()))
	assert.Equal(t, h.svc.Positions(), other.svc.Positions())
}

func TestPositionService_LoadAssignsMissingIDs(t *testing.T) {
	h := newPositionHarness(t)
	h.store.positions = []domain.Position{{Symbol: "AAAUSDT", EntryPrice: d("1"), Quantity: d("1")}}
	require.NoError(t, h.svc.Load(context.Background()))
	assert.NotEmpty(t, h.svc.Positions()[0].ID)
}

func TestRealizedProfit(t *testing.T) {
	at := time.Now()
	a := openPosition("AAAUSDT", "100", at).Close(d("110"), at, domain.ExitReasonTakeProfit)
	b := openPosition("BBBUSDT", "100", at).Close(d("95"), at, domain.ExitReasonStopLoss)
	c := openPosition("CCCUSDT", "100", at)

	total := RealizedProfit([]domain.Position{a, b, c}, nil)
	assert.True(t, total.Equal(d("10")), "got %s", total)
}
