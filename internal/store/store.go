// Package store opens the configured persistence backend for position
// history and symbol weights.
package store

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/momentumbot/internal/config"
	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/store/file"
	"github.com/alanyoungcy/momentumbot/internal/store/postgres"
	"github.com/alanyoungcy/momentumbot/internal/store/sqlite"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backend is an open pair of stores and the handle they share.
type Backend struct {
	Name      string
	Positions domain.PositionStore
	Weights   domain.WeightStore

	close func() error
}

// Close releases the backend's handle. The file backend holds none.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the backend named by cfg.Backend; an empty name means the
// JSON files.
func Open(ctx context.Context, cfg config.StoreConfig, pg config.PostgresConfig) (*Backend, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return &Backend{
			Name:      BackendFile,
			Positions: file.NewPositionStore(cfg.HistoryPath),
			Weights:   file.NewWeightStore(cfg.WeightsPath),
		}, nil

	case BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return &Backend{Name: BackendSQLite, Positions: db.Positions(), Weights: db.Weights(), close: db.Close}, nil

	case BackendPostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			URL:      pg.DSN,
			Host:     pg.Host,
			Port:     pg.Port,
			Database: pg.Database,
			User:     pg.User,
			Password: pg.Password,
			SSLMode:  pg.SSLMode,
			MaxConns: int32(pg.PoolMaxConns),
			MinConns: int32(pg.PoolMinConns),
			Migrate:  pg.RunMigrations,
		})
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return &Backend{Name: BackendPostgres, Positions: db.Positions(), Weights: db.Weights(), close: db.Close}, nil

	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
