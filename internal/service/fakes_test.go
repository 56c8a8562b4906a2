package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeProvider struct {
	mu        sync.Mutex
	prices    map[string][]decimal.Decimal // consumed in order; last value sticks
	priceErr  map[string]error
	lots      map[string]domain.LotSize
	balance   decimal.Decimal
	buyErr    error
	sellErr   error
	buyFill   *domain.OrderFill
	buys      []domain.OrderFill
	sells     []domain.OrderFill
	tickers   []domain.Ticker
	tickerErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		prices:   make(map[string][]decimal.Decimal),
		priceErr: make(map[string]error),
		lots:     make(map[string]domain.LotSize),
	}
}

func (f *fakeProvider) setPrice(symbol string, prices ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = nil
	for _, p := range prices {
		f.prices[symbol] = append(f.prices[symbol], d(p))
	}
}

func (f *fakeProvider) FreeBalance(context.Context, string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeProvider) Tickers(context.Context) (domain.MarketSnapshot, error) {
	return f.tickers, f.tickerErr
}

func (f *fakeProvider) SpotPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.priceErr[symbol]; err != nil {
		return decimal.Zero, err
	}
	ps := f.prices[symbol]
	if len(ps) == 0 {
		return decimal.Zero, domain.ErrProvider
	}
	p := ps[0]
	if len(ps) > 1 {
		f.prices[symbol] = ps[1:]
	}
	return p, nil
}

func (f *fakeProvider) LotSize(_ context.Context, symbol string) (domain.LotSize, error) {
	if lot, ok := f.lots[symbol]; ok {
		return lot, nil
	}
	return domain.LotSize{StepSize: d("0.01"), MinQty: d("0.01")}, nil
}

func (f *fakeProvider) MarketBuy(_ context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	if f.buyErr != nil {
		return domain.OrderFill{}, f.buyErr
	}
	fill := domain.OrderFill{OrderID: "b", Symbol: symbol, Side: domain.OrderSideBuy, ExecutedQty: qty, Status: "FILLED"}
	if f.buyFill != nil {
		fill = *f.buyFill
	}
	f.buys = append(f.buys, fill)
	return fill, nil
}

func (f *fakeProvider) MarketSell(_ context.Context, symbol string, qty decimal.Decimal) (domain.OrderFill, error) {
	if f.sellErr != nil {
		return domain.OrderFill{}, f.sellErr
	}
	fill := domain.OrderFill{OrderID: "s", Symbol: symbol, Side: domain.OrderSideSell, ExecutedQty: qty, Status: "FILLED"}
	f.sells = append(f.sells, fill)
	return fill, nil
}

type memWeightStore struct {
	weights []domain.SymbolWeight
	saves   int
	loadErr error
}

func (m *memWeightStore) Load(context.Context) ([]domain.SymbolWeight, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]domain.SymbolWeight, len(m.weights))
	copy(out, m.weights)
	return out, nil
}

func (m *memWeightStore) Save(_ context.Context, w []domain.SymbolWeight) error {
	m.saves++
	m.weights = append([]domain.SymbolWeight(nil), w...)
	return nil
}

type memPositionStore struct {
	positions []domain.Position
	saves     int
}

func (m *memPositionStore) Load(context.Context) ([]domain.Position, error) {
	return append([]domain.Position(nil), m.positions...), nil
}

func (m *memPositionStore) Save(_ context.Context, p []domain.Position) error {
	m.saves++
	m.positions = append([]domain.Position(nil), p...)
	return nil
}

type sentNotice struct {
	event, title, message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (r *recordingNotifier) Notify(_ context.Context, event, title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotice{event, title, message})
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.event)
	}
	return out
}

type recordingBus struct {
	payloads [][]byte
}

func (b *recordingBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.payloads = append(b.payloads, payload)
	return nil
}
