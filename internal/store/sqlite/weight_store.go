package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// WeightStore implements domain.WeightStore on SQLite.
type WeightStore struct {
	db *sql.DB
}

// Load returns the weights in first-seen order.
func (s *WeightStore) Load(ctx context.Context) ([]domain.SymbolWeight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, weight FROM symbol_weights ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load weights: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	weights := []domain.SymbolWeight{}
	for rows.Next() {
		var w domain.SymbolWeight
		if err := rows.Scan(&w.Symbol, &w.Weight); err != nil {
			return nil, fmt.Errorf("sqlite: scan weight: %w: %w", domain.ErrPersistence, err)
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate weights: %w: %w", domain.ErrPersistence, err)
	}
	return weights, nil
}

// Save upserts every weight in one transaction.
func (s *WeightStore) Save(ctx context.Context, weights []domain.SymbolWeight) error {
	if len(weights) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w: %w", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbol_weights (symbol, seq, weight) VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET seq = excluded.seq, weight = excluded.weight`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	for i, w := range weights {
		if _, err := stmt.ExecContext(ctx, w.Symbol, i, w.Weight); err != nil {
			return fmt.Errorf("sqlite: upsert weight %s: %w: %w", w.Symbol, domain.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit weights: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

var _ domain.WeightStore = (*WeightStore)(nil)
var _ domain.PositionStore = (*PositionStore)(nil)
