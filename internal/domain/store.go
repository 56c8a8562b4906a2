package domain

import "context"

// PositionStore persists the full, ordered position history. Save rewrites
// the whole sequence; Load returns it in recorded order. An empty store
// loads as an empty slice.
type PositionStore interface {
	Load(ctx context.Context) ([]Position, error)
	Save(ctx context.Context, positions []Position) error
}

// WeightStore persists the symbol weights.
type WeightStore interface {
	Load(ctx context.Context) ([]SymbolWeight, error)
	Save(ctx context.Context, weights []SymbolWeight) error
}
