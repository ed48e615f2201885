// Package postgres implements the storage.Backend interface on PostgreSQL
// through the GORM backend.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ironbanner/battlecore/internal/database"
	gormstorage "github.com/ironbanner/battlecore/internal/storage/gorm"
)

// Backend is the GORM backend bound to a Postgres connection opened in Init.
type Backend struct {
	*gormstorage.Backend
	cfg database.PostgresConfig
	log zerolog.Logger
}

// New creates a Postgres backend. The connection is made in Init.
func New(cfg database.PostgresConfig, log zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, log: log}
}

// Init connects, migrates and starts the battle writer.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg, b.log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.log})
	return b.Backend.Init()
}

// Close flushes pending writes. It is a no-op if Init never succeeded.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
