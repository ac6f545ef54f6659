// Package scene is an in-memory spatial query service over axis-aligned boxes.
//
// Queries may run concurrently. Edits are queued and applied at a pass boundary
// through ApplyPending so they never interleave with queries of the same pass.
package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/vlbeam/occlusion/internal/queue"
	"github.com/vlbeam/occlusion/pkg/core"
)

// ErrUnknownOccluder is returned when an edit targets a missing occluder
var ErrUnknownOccluder = errors.New("unknown occluder")

type editKind int

const (
	editAdd editKind = iota
	editRemove
	editMove
)

type edit struct {
	kind     editKind
	occluder Occluder
	id       core.OccluderID
	delta    r3.Vector
}

// Scene holds the occluders and answers ray queries
type Scene struct {
	mu        sync.RWMutex
	occluders []Occluder
	index     map[core.OccluderID]int

	pending *queue.Queue[edit]
	logger  *slog.Logger
}

// New creates a scene with the given occluders applied immediately.
// Later occluders replace earlier ones with the same ID.
func New(logger *slog.Logger, occluders ...Occluder) *Scene {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scene{
		index:   make(map[core.OccluderID]int),
		pending: queue.New[edit](),
		logger:  logger,
	}
	for _, o := range occluders {
		s.put(o)
	}
	return s
}

// CastRay returns every box entered by the ray within maxDistance whose layer is in mask.
// direction must be unit length. Results are in scene order, not sorted.
func (s *Scene) CastRay(ctx context.Context, origin, direction r3.Vector, maxDistance float64, mask core.LayerMask) ([]core.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxDistance <= 0 || direction.Norm2() == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []core.Hit
	for _, o := range s.occluders {
		if !mask.Contains(o.Layer) {
			continue
		}
		t, normal, ok := o.intersect(origin, direction, maxDistance)
		if !ok {
			continue
		}
		hits = append(hits, core.Hit{
			Point:    origin.Add(direction.Mul(t)),
			Normal:   normal,
			Distance: t,
			Excluded: o.Trigger,
			Area:     o.Area(),
			Occluder: o.ID,
		})
	}
	return hits, nil
}

// Occluder returns the applied state of one occluder
func (s *Scene) Occluder(id core.OccluderID) (Occluder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Occluder{}, false
	}
	return s.occluders[i], true
}

// Occluders returns a copy of the applied occluders
func (s *Scene) Occluders() []Occluder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Occluder, len(s.occluders))
	copy(out, s.occluders)
	return out
}

// Add queues an occluder insertion (or replacement)
func (s *Scene) Add(o Occluder) {
	s.pending.Push(edit{kind: editAdd, occluder: o})
}

// Remove queues an occluder removal
func (s *Scene) Remove(id core.OccluderID) {
	s.pending.Push(edit{kind: editRemove, id: id})
}

// Move queues a translation of one occluder
func (s *Scene) Move(id core.OccluderID, delta r3.Vector) {
	s.pending.Push(edit{kind: editMove, id: id, delta: delta})
}

// Advance queues a move of every occluder with a velocity, scaled by dt seconds
func (s *Scene) Advance(dt float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.occluders {
		if o.Velocity.Norm2() == 0 {
			continue
		}
		s.pending.Push(edit{kind: editMove, id: o.ID, delta: o.Velocity.Mul(dt)})
	}
}

// Pending returns the number of queued edits
func (s *Scene) Pending() int {
	return s.pending.Len()
}

// Apply applies every queued edit in order. Edits targeting unknown occluders are
// skipped and reported as a joined error.
func (s *Scene) Apply() error {
	edits := s.pending.Drain()
	if len(edits) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, e := range edits {
		switch e.kind {
		case editAdd:
			s.put(e.occluder)
		case editRemove:
			if !s.remove(e.id) {
				errs = append(errs, fmt.Errorf("remove %q: %w", e.id, ErrUnknownOccluder))
			}
		case editMove:
			i, ok := s.index[e.id]
			if !ok {
				errs = append(errs, fmt.Errorf("move %q: %w", e.id, ErrUnknownOccluder))
				continue
			}
			s.occluders[i] = s.occluders[i].Translate(e.delta)
		}
	}
	return errors.Join(errs...)
}

// ApplyPending applies queued edits and logs rejected ones. It satisfies the
// scheduler barrier hook.
func (s *Scene) ApplyPending() {
	if err := s.Apply(); err != nil {
		s.logger.Warn("scene edits rejected", "error", err)
	}
}

func (s *Scene) put(o Occluder) {
	if i, ok := s.index[o.ID]; ok {
		s.occluders[i] = o
		return
	}
	s.index[o.ID] = len(s.occluders)
	s.occluders = append(s.occluders, o)
}

func (s *Scene) remove(id core.OccluderID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.occluders = append(s.occluders[:i], s.occluders[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.occluders); j++ {
		s.index[s.occluders[j].ID] = j
	}
	return true
}
