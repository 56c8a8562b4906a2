package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// PositionStore implements domain.PositionStore on SQLite. Decimals and
// timestamps are stored as text so no precision is lost.
type PositionStore struct {
	db *sql.DB
}

// Load returns the full history in recorded order.
func (s *PositionStore) Load(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, entry_price, quantity, entry_time, closed,
			exit_price, exit_time, COALESCE(exit_reason, '')
		FROM positions ORDER BY seq ASC, entry_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load positions: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	positions := []domain.Position{}
	for rows.Next() {
		var (
			p                          domain.Position
			entryPrice, qty, entryTime string
			exitPrice, exitTime        sql.NullString
			exitReason                 string
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &entryPrice, &qty, &entryTime, &p.Closed,
			&exitPrice, &exitTime, &exitReason); err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w: %w", domain.ErrPersistence, err)
		}
		if err := decodePosition(&p, entryPrice, qty, entryTime, exitPrice, exitTime); err != nil {
			return nil, fmt.Errorf("sqlite: decode position %s: %w: %w", p.ID, domain.ErrPersistence, err)
		}
		p.ExitReason = domain.ExitReason(exitReason)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate positions: %w: %w", domain.ErrPersistence, err)
	}
	return positions, nil
}

func decodePosition(p *domain.Position, entryPrice, qty, entryTime string, exitPrice, exitTime sql.NullString) error {
	var err error
	if p.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return fmt.Errorf("entry_price: %w", err)
	}
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	if p.EntryTime, err = time.Parse(time.RFC3339Nano, entryTime); err != nil {
		return fmt.Errorf("entry_time: %w", err)
	}
	if exitPrice.Valid {
		ep, err := decimal.NewFromString(exitPrice.String)
		if err != nil {
			return fmt.Errorf("exit_price: %w", err)
		}
		p.ExitPrice = &ep
	}
	if exitTime.Valid {
		et, err := time.Parse(time.RFC3339Nano, exitTime.String)
		if err != nil {
			return fmt.Errorf("exit_time: %w", err)
		}
		p.ExitTime = &et
	}
	return nil
}

// Save upserts every position in one transaction. A row already marked
// closed is left untouched.
func (s *PositionStore) Save(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w: %w", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (
			id, seq, symbol, entry_price, quantity, entry_time,
			closed, exit_price, exit_time, exit_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(id) DO UPDATE SET
			seq         = excluded.seq,
			closed      = excluded.closed,
			exit_price  = excluded.exit_price,
			exit_time   = excluded.exit_time,
			exit_reason = excluded.exit_reason,
			updated_at  = excluded.updated_at
		WHERE positions.closed = 0`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, p := range positions {
		var exitPrice, exitTime sql.NullString
		if p.ExitPrice != nil {
			exitPrice = sql.NullString{String: p.ExitPrice.String(), Valid: true}
		}
		if p.ExitTime != nil {
			exitTime = sql.NullString{String: p.ExitTime.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, i, p.Symbol, p.EntryPrice.String(), p.Quantity.String(),
			p.EntryTime.UTC().Format(time.RFC3339Nano),
			p.Closed, exitPrice, exitTime, string(p.ExitReason), now,
		); err != nil {
			return fmt.Errorf("sqlite: upsert position %s: %w: %w", p.ID, domain.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit positions: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
