package file

import (
	"context"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// PositionStore implements domain.PositionStore on a JSON file.
type PositionStore struct {
	f jsonFile[domain.Position]
}

// NewPositionStore creates a PositionStore backed by path.
func NewPositionStore(path string) *PositionStore {
	return &PositionStore{f: jsonFile[domain.Position]{path: path}}
}

// Load implements domain.PositionStore.
func (s *PositionStore) Load(_ context.Context) ([]domain.Position, error) {
	return s.f.load()
}

// Save implements domain.PositionStore.
func (s *PositionStore) Save(_ context.Context, positions []domain.Position) error {
	return s.f.save(positions)
}

// WeightStore implements domain.WeightStore on a JSON file.
type WeightStore struct {
	f jsonFile[domain.SymbolWeight]
}

// NewWeightStore creates a WeightStore backed by path.
func NewWeightStore(path string) *WeightStore {
	return &WeightStore{f: jsonFile[domain.SymbolWeight]{path: path}}
}

// Load implements domain.WeightStore.
func (s *WeightStore) Load(_ context.Context) ([]domain.SymbolWeight, error) {
	return s.f.load()
}

// Save implements domain.WeightStore.
func (s *WeightStore) Save(_ context.Context, weights []domain.SymbolWeight) error {
	return s.f.save(weights)
}
