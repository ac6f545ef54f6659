// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/vlbeam/occlusion/internal/config"
	v1 "github.com/vlbeam/occlusion/internal/storage/memory/export/v1"
	"github.com/vlbeam/occlusion/pkg/core"
)

// Backend stores evaluations in memory and exports them to JSON on Close
type Backend struct {
	cfg config.MemoryConfig

	beams     map[core.BeamID]*v1.BeamRecord
	startedAt time.Time
	now       func() time.Time

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		beams: make(map[core.BeamID]*v1.BeamRecord),
		now:   time.Now,
	}
}

// Init starts a fresh run
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beams = make(map[core.BeamID]*v1.BeamRecord)
	b.startedAt = b.now()
	return nil
}

// Close exports the collected run
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportJSON()
}

// RecordEvaluation appends an evaluation to its beam
func (b *Backend) RecordEvaluation(e *core.Evaluation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.beams[e.BeamID]
	if !ok {
		record = &v1.BeamRecord{ID: e.BeamID, Name: e.BeamName}
		b.beams[e.BeamID] = record
	}
	record.Evaluations = append(record.Evaluations, *e)
	return nil
}

// Evaluations returns a copy of the recorded evaluations of one beam
func (b *Backend) Evaluations(id core.BeamID) []core.Evaluation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.beams[id]
	if !ok {
		return nil
	}
	out := make([]core.Evaluation, len(record.Evaluations))
	copy(out, record.Evaluations)
	return out
}

// GetExportedFilePath returns the path of the last export, empty before Close
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
