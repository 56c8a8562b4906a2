// Package sqlite persists position history and symbol weights in a local
// SQLite file through the pure-Go glebarez driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/glebarez/go-sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	symbol      TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	entry_time  TEXT NOT NULL,
	closed      INTEGER NOT NULL DEFAULT 0,
	exit_price  TEXT,
	exit_time   TEXT,
	exit_reason TEXT,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_seq ON positions (seq);

CREATE TABLE IF NOT EXISTS symbol_weights (
	symbol TEXT PRIMARY KEY,
	seq    INTEGER NOT NULL,
	weight INTEGER NOT NULL
);`

// DB owns the SQLite handle shared by the position and weight stores.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL enabled
// and the schema applied.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// one writer; avoids SQLITE_BUSY between the two stores
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: set pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Positions returns the position store backed by d.
func (d *DB) Positions() *PositionStore {
	return &PositionStore{db: d.db}
}

// Weights returns the weight store backed by d.
func (d *DB) Weights() *WeightStore {
	return &WeightStore{db: d.db}
}
