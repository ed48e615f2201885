// Package sqlitestorage implements the storage.Backend interface on SQLite.
// It wraps the GORM backend via composition. With no file path the database
// lives in memory and is dumped to disk periodically via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ironbanner/battlecore/internal/database"
	gormstorage "github.com/ironbanner/battlecore/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string // empty keeps the database in memory
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      zerolog.Logger
	stopChan chan struct{}
	dumping  atomic.Bool
	dumps    atomic.Int64
}

// New creates a new SQLite storage backend.
func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	if cfg.Path != "" {
		log.Info().Str("path", cfg.Path).Msg("Using local SQLite DB")
	} else {
		log.Info().Msg("Using local SQLite DB in memory with periodic disk dump")
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log}),
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.memory() && b.cfg.DumpInterval > 0 {
		b.dumping.Store(true)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, flushes the GORM backend and writes a final dump.
func (b *Backend) Close() error {
	if b.dumping.Swap(false) {
		close(b.stopChan)
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.memory() {
		return b.Dump()
	}
	return nil
}

// Dump writes the in-memory database to DumpPath.
func (b *Backend) Dump() error {
	d, err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
	if err != nil {
		return err
	}
	b.dumps.Add(1)
	b.log.Debug().Dur("duration", d).Str("path", b.cfg.DumpPath).Msg("Dumped memory DB to disk")
	return nil
}

// Dumps is the number of successful dumps.
func (b *Backend) Dumps() int64 {
	return b.dumps.Load()
}

func (b *Backend) memory() bool {
	return b.cfg.Path == "" && b.cfg.DumpPath != ""
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error().Err(err).Msg("Error dumping to disk")
			}
		}
	}
}
