// Package gormstorage implements the storage.Backend interface on top of any GORM
// dialect, with an internal queue and a background DB writer goroutine.
package gormstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vlbeam/occlusion/internal/database"
	"github.com/vlbeam/occlusion/internal/model"
	"github.com/vlbeam/occlusion/internal/queue"
	"github.com/vlbeam/occlusion/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is not positive
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration

	// MaxPending caps queued evaluations; when exceeded the oldest are dropped.
	// 0 means unbounded.
	MaxPending int
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Beams       *queue.Queue[model.Beam]
	Evaluations *queue.Queue[model.Evaluation]
}

func newQueues(maxPending int) *queues {
	return &queues{
		Beams:       queue.New[model.Beam](),
		Evaluations: queue.NewBounded[model.Evaluation](maxPending),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	// seen tracks beams already queued for registration
	seen   map[string]struct{}
	seenMu sync.Mutex

	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(deps.MaxPending),
		seen:   make(map[string]struct{}),
	}
}

// DB returns the underlying connection
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects a connection opened after New. It must be called before Init.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init migrates the schema and starts the DB writer goroutine.
// Without a DB the backend only queues, which tests rely on.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB != nil {
		b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
		if err := database.Setup(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine and flushes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	if dropped := b.Dropped(); dropped > 0 {
		b.deps.Logger.Warn("Evaluations dropped while the database lagged", "count", dropped)
	}
	return b.Flush()
}

// RecordEvaluation queues an evaluation, registering its beam on first sight.
// Records that cannot be stored are rejected without queuing anything.
func (b *Backend) RecordEvaluation(e *core.Evaluation) error {
	row, err := model.FromEvaluation(*e)
	if err != nil {
		return fmt.Errorf("converting evaluation: %w", err)
	}
	beam := model.BeamFromEvaluation(*e)

	b.seenMu.Lock()
	_, known := b.seen[beam.ID]
	if !known {
		b.seen[beam.ID] = struct{}{}
	}
	b.seenMu.Unlock()

	if !known {
		b.queues.Beams.Push(beam)
	}
	b.queues.Evaluations.Push(row)
	return nil
}

// Pending returns the number of queued rows not yet written
func (b *Backend) Pending() int {
	return b.queues.Beams.Len() + b.queues.Evaluations.Len()
}

// Dropped returns how many evaluations were discarded because the queue was full
func (b *Backend) Dropped() int {
	return b.queues.Evaluations.Dropped()
}

// Flush writes all queued rows. Beams go first so evaluation rows never reference
// an unknown beam. A failed batch is requeued and its error returned.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if err := writeQueue(b.deps.DB, b.queues.Beams, "beams", b.deps.Logger, true); err != nil {
		return err
	}
	return writeQueue(b.deps.DB, b.queues.Evaluations, "evaluations", b.deps.Logger, false)
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, ignoreConflicts bool) error {
	if q.Empty() {
		return nil
	}

	tx := db.Begin()
	if ignoreConflicts {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	items := q.Drain()
	start := time.Now()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("writing %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("committing %s: %w", name, err)
	}
	log.Debug("Wrote rows", "table", name, "count", len(items), "duration", time.Since(start))
	return nil
}

// writerLoop periodically drains the queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged by writeQueue and the rows retried next cycle
			_ = b.Flush()
		}
	}
}
