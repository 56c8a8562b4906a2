package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// WeightStore implements domain.WeightStore using PostgreSQL.
type WeightStore struct {
	pool *pgxpool.Pool
}

// Load returns every weight in first-seen order.
func (s *WeightStore) Load(ctx context.Context) ([]domain.SymbolWeight, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, weight FROM symbol_weights ORDER BY seq, symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load weights: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	weights := []domain.SymbolWeight{}
	for rows.Next() {
		var w domain.SymbolWeight
		if err := rows.Scan(&w.Symbol, &w.Weight); err != nil {
			return nil, fmt.Errorf("postgres: scan weight: %w: %w", domain.ErrPersistence, err)
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate weights: %w: %w", domain.ErrPersistence, err)
	}
	return weights, nil
}

// Save upserts every weight in one transaction.
func (s *WeightStore) Save(ctx context.Context, weights []domain.SymbolWeight) error {
	if len(weights) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w: %w", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO symbol_weights (symbol, seq, weight, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			seq = EXCLUDED.seq,
			weight = EXCLUDED.weight,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for i, w := range weights {
		batch.Queue(query, w.Symbol, i, w.Weight)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range weights {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: upsert weight %d: %w: %w", i, domain.ErrPersistence, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close batch: %w: %w", domain.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit weights: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
