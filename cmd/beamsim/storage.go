package main

import (
	"fmt"
	"path/filepath"

	"github.com/vlbeam/occlusion/internal/storage"
)

// createStorageBackend builds the configured backend. SQLite dumps and InfluxDB
// backups land next to the log files unless a path is configured.
func (a *App) createStorageBackend() (storage.Backend, error) {
	s := a.settings
	cfg := s.Storage
	stamp := s.Start.Format("20060102_150405")

	if cfg.Type == "sqlite" && cfg.SQLite.DumpPath == "" && cfg.SQLite.Path == "" {
		cfg.SQLite.DumpPath = filepath.Join(s.LogsDir, fmt.Sprintf("%s_%s.db", AppName, stamp))
	}

	backend, err := storage.NewBackend(cfg, storage.Options{
		Logger:           a.logger,
		ZeroLogger:       a.logs.ZeroLogger(),
		DB:               s.DB,
		Influx:           s.Influx,
		InfluxBackupPath: filepath.Join(s.LogsDir, fmt.Sprintf("%s_influx_%s.lp.gz", AppName, stamp)),
	})
	if err != nil {
		a.logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	a.logger.Info("Storage backend created", "type", cfg.Type)
	return backend, nil
}
