// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// Queueing and batch writes are shared with the SQLite backend through gormstorage;
// this package owns the connection lifecycle. When Postgres cannot be reached the
// backend keeps writing to a private in-memory SQLite database.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
	"github.com/vlbeam/occlusion/internal/config"
	"github.com/vlbeam/occlusion/internal/database"
	gormstorage "github.com/vlbeam/occlusion/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the PostgreSQL storage backend.
type Dependencies struct {
	Config        config.DBConfig
	Logger        *slog.Logger
	FlushInterval time.Duration
	MaxPending    int

	// ZeroLogger is handed to the connection manager
	ZeroLogger zerolog.Logger

	// DB skips connecting when set
	DB *gorm.DB
}

// Backend implements storage.Backend on a PostgreSQL connection.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a new PostgreSQL storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:            deps.DB,
			Logger:        deps.Logger,
			FlushInterval: deps.FlushInterval,
			MaxPending:    deps.MaxPending,
		}),
		deps: deps,
	}
}

// Init connects if no DB was injected, migrates the schema and starts the DB
// writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		b.manager = database.NewManager(b.deps.ZeroLogger)
		err := database.Timed(b.deps.ZeroLogger, "connect", func() error {
			return b.manager.Connect(b.deps.Config)
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if b.manager.ShouldSaveLocal {
			b.deps.Logger.Warn("Postgres unreachable, evaluations are kept in memory only", "host", b.deps.Config.Host)
		}
		b.deps.DB = b.manager.DB
		b.Backend.SetDB(b.manager.DB)
	}

	return b.Backend.Init()
}

// Local reports whether the backend fell back to the in-memory SQLite database
func (b *Backend) Local() bool {
	return b.manager != nil && b.manager.ShouldSaveLocal
}

// Close flushes the queues and releases the connection pool it opened.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.manager != nil {
		return b.manager.Close()
	}
	return nil
}
