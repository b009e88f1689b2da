package frames

import (
	"context"
	"fmt"

	"framegrid/internal/catalog"
	"framegrid/internal/infra/persistence/memory"
	"framegrid/internal/infra/persistence/postgres"
	"framegrid/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a catalog backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects the catalog backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenCatalog returns the configured store and a close function releasing
// its resources.
func OpenCatalog(ctx context.Context, cfg StorageConfig) (catalog.Store, func() error, error) {
	noop := func() error { return nil }
	driver := cfg.Driver
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), noop, nil
	case StorageSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres storage requires a DSN")
		}
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
