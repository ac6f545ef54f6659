// internal/storage/storage.go
package storage

import (
	"errors"
	"log/slog"

	"github.com/vlbeam/occlusion/pkg/core"
)

// ErrUnknownBackend is returned by NewBackend for an unsupported storage type
var ErrUnknownBackend = errors.New("unknown storage type")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// RecordEvaluation persists one detector run. It must not block on I/O.
	RecordEvaluation(e *core.Evaluation) error
}

// Exporter is an optional interface for backends that write a file on Close.
type Exporter interface {
	GetExportedFilePath() string
}

// Sink adapts a Backend to the diagnostics sink used by beam instances.
// Write errors are logged and never reach the evaluation path.
type Sink struct {
	backend Backend
	logger  *slog.Logger
}

func NewSink(b Backend, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{backend: b, logger: logger}
}

func (s *Sink) Record(ev core.Evaluation) {
	if err := s.backend.RecordEvaluation(&ev); err != nil {
		s.logger.Warn("failed to record evaluation", "beam", ev.BeamName, "tick", ev.Tick, "error", err)
	}
}

// Nop discards every record
type Nop struct{}

func (Nop) Init() error                             { return nil }
func (Nop) Close() error                            { return nil }
func (Nop) RecordEvaluation(*core.Evaluation) error { return nil }
