// Package mirror decorates the position and weight stores so that every
// successful save is also uploaded as a JSON snapshot to object storage.
// Mirror failures are logged and never fail the save.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

const (
	positionsObject = "positions.json"
	weightsObject   = "weights.json"
	contentType     = "application/json"
)

// PositionStore mirrors saves of an inner domain.PositionStore.
type PositionStore struct {
	inner  domain.PositionStore
	blob   domain.BlobWriter
	key    string
	logger *slog.Logger
}

// NewPositionStore wraps inner, uploading to <prefix>/positions.json.
func NewPositionStore(inner domain.PositionStore, blob domain.BlobWriter, prefix string, logger *slog.Logger) *PositionStore {
	return &PositionStore{
		inner:  inner,
		blob:   blob,
		key:    path.Join(prefix, positionsObject),
		logger: logger.With(slog.String("component", "state_mirror")),
	}
}

// Load reads from the inner store only.
func (s *PositionStore) Load(ctx context.Context) ([]domain.Position, error) {
	return s.inner.Load(ctx)
}

// Save writes to the inner store, then mirrors the snapshot.
func (s *PositionStore) Save(ctx context.Context, positions []domain.Position) error {
	if err := s.inner.Save(ctx, positions); err != nil {
		return err
	}
	upload(ctx, s.blob, s.key, positions, s.logger)
	return nil
}

// WeightStore mirrors saves of an inner domain.WeightStore.
type WeightStore struct {
	inner  domain.WeightStore
	blob   domain.BlobWriter
	key    string
	logger *slog.Logger
}

// NewWeightStore wraps inner, uploading to <prefix>/weights.json.
func NewWeightStore(inner domain.WeightStore, blob domain.BlobWriter, prefix string, logger *slog.Logger) *WeightStore {
	return &WeightStore{
		inner:  inner,
		blob:   blob,
		key:    path.Join(prefix, weightsObject),
		logger: logger.With(slog.String("component", "state_mirror")),
	}
}

// Load reads from the inner store only.
func (s *WeightStore) Load(ctx context.Context) ([]domain.SymbolWeight, error) {
	return s.inner.Load(ctx)
}

// Save writes to the inner store, then mirrors the snapshot.
func (s *WeightStore) Save(ctx context.Context, weights []domain.SymbolWeight) error {
	if err := s.inner.Save(ctx, weights); err != nil {
		return err
	}
	upload(ctx, s.blob, s.key, weights, s.logger)
	return nil
}

func upload(ctx context.Context, blob domain.BlobWriter, key string, v any, logger *slog.Logger) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.ErrorContext(ctx, "marshal snapshot failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := blob.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		logger.WarnContext(ctx, "mirror upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.DebugContext(ctx, "state mirrored", slog.String("key", key), slog.Int("bytes", len(data)))
}
