package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// MemoryStore owns the symbol weights: the bot's memory of which symbols have
// paid off. Unknown symbols weigh domain.DefaultWeight.
type MemoryStore struct {
	store domain.WeightStore

	mu      sync.RWMutex
	weights map[string]int
	order   []string
}

// NewMemoryStore creates an empty MemoryStore persisted through store.
func NewMemoryStore(store domain.WeightStore) *MemoryStore {
	return &MemoryStore{
		store:   store,
		weights: make(map[string]int),
	}
}

// Get returns the weight of symbol.
func (m *MemoryStore) Get(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.weights[symbol]; ok {
		return w
	}
	return domain.DefaultWeight
}

// Adjust adds delta to the weight of symbol, starting from the default for
// a symbol seen for the first time.
func (m *MemoryStore) Adjust(symbol string, delta int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.weights[symbol]
	if !ok {
		w = domain.DefaultWeight
		m.order = append(m.order, symbol)
	}
	w += delta
	m.weights[symbol] = w
	return w
}

// Snapshot returns every stored weight in first-seen order.
func (m *MemoryStore) Snapshot() []domain.SymbolWeight {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SymbolWeight, 0, len(m.order))
	for _, sym := range m.order {
		out = append(out, domain.SymbolWeight{Symbol: sym, Weight: m.weights[sym]})
	}
	return out
}

// Load replaces the in-memory weights with the persisted ones. When a symbol
// appears more than once the last entry wins.
func (m *MemoryStore) Load(ctx context.Context) error {
	stored, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("memory: load weights: %w", err)
	}

	weights := make(map[string]int, len(stored))
	order := make([]string, 0, len(stored))
	for _, sw := range stored {
		if _, seen := weights[sw.Symbol]; !seen {
			order = append(order, sw.Symbol)
		}
		weights[sw.Symbol] = sw.Weight
	}

	m.mu.Lock()
	m.weights = weights
	m.order = order
	m.mu.Unlock()
	return nil
}

// Save writes the full weight set.
func (m *MemoryStore) Save(ctx context.Context) error {
	if err := m.store.Save(ctx, m.Snapshot()); err != nil {
		return fmt.Errorf("memory: save weights: %w", err)
	}
	return nil
}
