// Package diagnostics collects per-beam evaluation records for debugging overlays,
// logs and persistent storage.
package diagnostics

import (
	"sync"

	"github.com/vlbeam/occlusion/pkg/core"
)

// Sink receives one record per detector run. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ev core.Evaluation)
}

// Clearer is implemented by sinks that track the live occluder of a beam. Clear is
// called when a beam stops clipping without an evaluation, on force off or
// deactivation, and must not count as an evaluation.
type Clearer interface {
	Clear(id core.BeamID)
}

// Snapshot is the last known debug state of one beam
type Snapshot struct {
	Name           string
	LastOccluder   core.OccluderID
	LastUpdateTick int64
	PlaneDistance  float64
	Occluded       bool
	Evaluations    int
	Aborts         int
}

// Tracker keeps the latest debug state of every beam it has seen.
// Record never blocks on I/O so it is safe to call from the evaluation path.
type Tracker struct {
	mu    sync.Mutex
	beams map[core.BeamID]Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{
		beams: make(map[core.BeamID]Snapshot),
	}
}

func (t *Tracker) Record(ev core.Evaluation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.beams[ev.BeamID]
	s.Name = ev.BeamName
	s.LastUpdateTick = ev.Tick
	s.Occluded = ev.Occluded
	s.Evaluations++
	if ev.Aborted {
		s.Aborts++
	}
	if ev.Occluded {
		s.LastOccluder = ev.Occluder
		s.PlaneDistance = ev.PlaneDistance
	} else {
		s.LastOccluder = ""
		s.PlaneDistance = 0
	}
	t.beams[ev.BeamID] = s
}

// Get returns the snapshot of one beam
func (t *Tracker) Get(id core.BeamID) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.beams[id]
	return s, ok
}

// LastOccluder returns the occluder of the last evaluation that found one.
// The second result is false when the beam is currently unoccluded or unknown.
func (t *Tracker) LastOccluder(id core.BeamID) (core.OccluderID, bool) {
	s, ok := t.Get(id)
	if !ok || !s.Occluded {
		return "", false
	}
	return s.LastOccluder, true
}

// LastUpdateTick returns the tick of the last evaluation, -1 if none was recorded
func (t *Tracker) LastUpdateTick(id core.BeamID) int64 {
	s, ok := t.Get(id)
	if !ok {
		return -1
	}
	return s.LastUpdateTick
}

// LastPlaneDistance returns the axis distance to the live clipping plane
func (t *Tracker) LastPlaneDistance(id core.BeamID) (float64, bool) {
	s, ok := t.Get(id)
	if !ok || !s.Occluded {
		return 0, false
	}
	return s.PlaneDistance, true
}

// Clear marks a known beam as unoccluded, keeping its counters and last update tick
func (t *Tracker) Clear(id core.BeamID) {
	t.clear(id)
}

func (t *Tracker) clear(id core.BeamID) (wasOccluded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.beams[id]
	if !ok {
		return false
	}
	wasOccluded = s.Occluded
	s.Occluded = false
	s.LastOccluder = ""
	s.PlaneDistance = 0
	t.beams[id] = s
	return wasOccluded
}

// Snapshots returns a copy of every tracked beam
func (t *Tracker) Snapshots() map[core.BeamID]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[core.BeamID]Snapshot, len(t.beams))
	for id, s := range t.beams {
		out[id] = s
	}
	return out
}

// Multi fans a record out to several sinks. Nil sinks are skipped.
type Multi []Sink

func (m Multi) Record(ev core.Evaluation) {
	for _, s := range m {
		if s != nil {
			s.Record(ev)
		}
	}
}

// Clear forwards to every member that implements Clearer
func (m Multi) Clear(id core.BeamID) {
	for _, s := range m {
		if c, ok := s.(Clearer); ok {
			c.Clear(id)
		}
	}
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(core.Evaluation)

func (f SinkFunc) Record(ev core.Evaluation) { f(ev) }
