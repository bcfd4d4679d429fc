// Package db persists original and processed chunk records.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the minimal surface the writer and retriever need. database is
// the logical store (original or processed), collection the per-kind table.
type Store interface {
	Ping(ctx context.Context) error
	Clear(ctx context.Context, database, collection string) error
	InsertMany(ctx context.Context, database, collection string, records []models.Record) (int, error)
	FindAll(ctx context.Context, database, collection string) ([]models.Record, error)
	Close(ctx context.Context) error
}

// Connect opens the configured backend. The connection is not verified;
// call Ping for that.
func Connect(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "mongo":
		return ConnectMongo(ctx, cfg)
	case "postgres":
		return ConnectPostgres(ctx, cfg)
	case "json":
		return NewJSONStore(cfg.OutputDir, cfg.OriginalDB), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ClearAll empties the three original and three processed collections.
func ClearAll(ctx context.Context, s Store, cfg *config.StoreConfig) error {
	var errs []error
	for _, kind := range models.Kinds {
		if err := s.Clear(ctx, cfg.OriginalDB, models.OriginalCollection(kind)); err != nil {
			errs = append(errs, err)
		}
		if err := s.Clear(ctx, cfg.ProcessedDB, models.ProcessedCollection(kind)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
