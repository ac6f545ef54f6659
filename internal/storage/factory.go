// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/vlbeam/occlusion/internal/config"
	influxstorage "github.com/vlbeam/occlusion/internal/storage/influx"
	"github.com/vlbeam/occlusion/internal/storage/memory"
	"github.com/vlbeam/occlusion/internal/storage/postgres"
	sqlitestorage "github.com/vlbeam/occlusion/internal/storage/sqlite"
)

// Options carries the connection settings of the networked backends
type Options struct {
	Logger *slog.Logger

	// ZeroLogger is used by the database and InfluxDB client managers
	ZeroLogger zerolog.Logger

	DB     config.DBConfig
	Influx config.InfluxConfig

	// InfluxBackupPath receives gzipped line protocol when InfluxDB is unreachable
	InfluxBackupPath string
}

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, opts Options) (Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("storage", cfg.Type)

	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		b, err := sqlitestorage.New(sqlitestorage.Config{
			Path:          cfg.SQLite.Path,
			DumpPath:      cfg.SQLite.DumpPath,
			DumpInterval:  cfg.SQLite.DumpInterval,
			FlushInterval: cfg.FlushInterval,
			MaxPending:    cfg.MaxPending,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "postgres":
		return postgres.New(postgres.Dependencies{
			Config:        opts.DB,
			Logger:        logger,
			ZeroLogger:    opts.ZeroLogger,
			FlushInterval: cfg.FlushInterval,
			MaxPending:    cfg.MaxPending,
		}), nil
	case "influx":
		return influxstorage.New(opts.Influx, opts.InfluxBackupPath, opts.ZeroLogger), nil
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Type)
	}
}
