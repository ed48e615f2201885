package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ironbanner/battlecore/internal/config"
	"github.com/ironbanner/battlecore/internal/database"
	"github.com/ironbanner/battlecore/internal/influx"
	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/internal/storage/memory"
	pgstorage "github.com/ironbanner/battlecore/internal/storage/postgres"
	sqlitestorage "github.com/ironbanner/battlecore/internal/storage/sqlite"
	"github.com/ironbanner/battlecore/internal/stream"
)

func createStorageBackend(storageCfg config.StorageConfig, log zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend selected")
		return pgstorage.New(database.PostgresConfig{
			Host:     config.GetString("db.host"),
			Port:     config.GetString("db.port"),
			Username: config.GetString("db.username"),
			Password: config.GetString("db.password"),
			Database: config.GetString("db.database"),
		}, log), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpPath:     storageCfg.SQLite.DumpPath,
			DumpInterval: storageCfg.SQLite.DumpInterval,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend selected")
		return backend, nil

	case "memory", "":
		Logger.Info("Memory storage backend selected")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, storageCfg.Type)
	}
}

// createRecorders connects the enabled outcome sinks. A sink that fails to
// connect is logged and skipped.
func createRecorders(log zerolog.Logger) []storage.Recorder {
	var recorders []storage.Recorder

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		m := influx.NewManager(influx.Config{
			URL:        influxCfg.URL(),
			Token:      influxCfg.Token,
			Org:        influxCfg.Org,
			Bucket:     influxCfg.Bucket,
			BackupPath: influxCfg.BackupPath,
		}, log)
		if err := m.Connect(appCtx); err != nil {
			Logger.Error("Failed to initialize InfluxDB recorder", "error", err)
		} else {
			recorders = append(recorders, m)
		}
	}

	if streamCfg := config.GetStreamConfig(); streamCfg.Enabled {
		p := stream.New(stream.Config{
			URL:     streamCfg.URL,
			Secret:  streamCfg.Secret,
			Service: ServiceName,
			Version: CurrentVersion,
		}, Logger)
		if err := p.Init(); err != nil {
			Logger.Error("Failed to connect outcome stream", "url", streamCfg.URL, "error", err)
			_ = p.Close()
		} else {
			Logger.Info("Outcome stream connected", "url", streamCfg.URL)
			recorders = append(recorders, p)
			streamPublisher = p
		}
	}

	return recorders
}
