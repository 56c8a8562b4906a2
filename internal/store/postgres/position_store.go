package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Rows are
// upserted by id; a row already marked closed is never rewritten.
type PositionStore struct {
	pool *pgxpool.Pool
}

const positionSelectCols = `id, symbol, entry_price::text, quantity::text, entry_time,
	closed, exit_price::text, exit_time, COALESCE(exit_reason, '')`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	positions := []domain.Position{}
	for rows.Next() {
		var (
			p               domain.Position
			entryPrice, qty string
			exitPrice       *string
			exitTime        *time.Time
			exitReason      string
		)
		if err := rows.Scan(
			&p.ID, &p.Symbol, &entryPrice, &qty, &p.EntryTime,
			&p.Closed, &exitPrice, &exitTime, &exitReason,
		); err != nil {
			return nil, err
		}

		var err error
		if p.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
			return nil, fmt.Errorf("entry_price of %s: %w", p.ID, err)
		}
		if p.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("quantity of %s: %w", p.ID, err)
		}
		if exitPrice != nil {
			ep, err := decimal.NewFromString(*exitPrice)
			if err != nil {
				return nil, fmt.Errorf("exit_price of %s: %w", p.ID, err)
			}
			p.ExitPrice = &ep
		}
		if exitTime != nil {
			t := exitTime.UTC()
			p.ExitTime = &t
		}
		p.EntryTime = p.EntryTime.UTC()
		p.ExitReason = domain.ExitReason(exitReason)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Load returns the full history in recorded order.
func (s *PositionStore) Load(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionSelectCols+` FROM positions ORDER BY seq, entry_time`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w: %w", domain.ErrPersistence, err)
	}
	return positions, nil
}

// Save upserts every position in one transaction, keeping the slice order
// as the recorded order.
func (s *PositionStore) Save(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w: %w", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO positions (
			id, seq, symbol, entry_price, quantity, entry_time,
			closed, exit_price, exit_time, exit_reason, updated_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6,
			$7, $8::numeric, $9, NULLIF($10, ''), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			seq         = EXCLUDED.seq,
			closed      = EXCLUDED.closed,
			exit_price  = EXCLUDED.exit_price,
			exit_time   = EXCLUDED.exit_time,
			exit_reason = EXCLUDED.exit_reason,
			updated_at  = NOW()
		WHERE positions.closed = FALSE`

	batch := &pgx.Batch{}
	for i, p := range positions {
		var exitPrice *string
		if p.ExitPrice != nil {
			v := p.ExitPrice.String()
			exitPrice = &v
		}
		batch.Queue(query,
			p.ID, i, p.Symbol, p.EntryPrice.String(), p.Quantity.String(), p.EntryTime,
			p.Closed, exitPrice, p.ExitTime, string(p.ExitReason),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range positions {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: upsert position %d: %w: %w", i, domain.ErrPersistence, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close batch: %w: %w", domain.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit positions: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
