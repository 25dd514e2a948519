package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/art-atlas/import-cli/internal/store"
)

// openStore opens the configured backend. Callers own Close.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (ARTATLAS_STORE_DATABASE_URL)")
		}
		return store.ConnectPostgres(ctx, cfg.Store.DatabaseURL, store.PostgresConfig{
			SpatialQueriesPerSecond: cfg.Store.SpatialQueriesPerSecond,
		})
	case "sqlite":
		if cfg.Store.SQLitePath == "" {
			return nil, eris.New("store.sqlite_path is required for the sqlite driver")
		}
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
