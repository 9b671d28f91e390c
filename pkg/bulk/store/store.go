// Package store holds the status store backends.
package store

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/database"
	"github.com/hashicorp-forge/bulkflow/pkg/models"
)

// Driver selects a status store backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverPebble   Driver = "pebble"
)

// Store is a status store that owns resources.
type Store interface {
	bulk.StatusStore
	io.Closer
}

// Config selects and configures a backend.
type Config struct {
	Driver Driver

	Postgres   database.Config
	SQLitePath string
	PebblePath string
}

// Open returns the configured store. Postgres schemas are managed by the
// migrate command; SQLite schemas are created on open.
func Open(cfg Config, logger hclog.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		db, err := database.Connect(cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return &ownedGormStore{GormStore: NewGormStore(db, logger), close: func() error {
			return database.Close(db)
		}}, nil

	case DriverSQLite:
		db, err := database.ConnectSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to create bulk_status table: %w", err)
		}
		return &ownedGormStore{GormStore: NewGormStore(db, logger), close: func() error {
			return database.Close(db)
		}}, nil

	case DriverPebble:
		return OpenPebble(cfg.PebblePath, nil, logger)

	default:
		return nil, fmt.Errorf("unsupported status store driver %q", cfg.Driver)
	}
}

type ownedGormStore struct {
	*GormStore
	close func() error
}

func (s *ownedGormStore) Close() error {
	return s.close()
}
