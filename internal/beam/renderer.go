package beam

import (
	"sync"

	"github.com/vlbeam/occlusion/pkg/core"
)

// PlaneRecorder is a Renderer that keeps the latest clipping plane of every beam.
// It stands in for a real renderer in headless runs.
type PlaneRecorder struct {
	mu     sync.Mutex
	planes map[core.BeamID]core.Plane
	sets   int
	clears int
}

func NewPlaneRecorder() *PlaneRecorder {
	return &PlaneRecorder{planes: make(map[core.BeamID]core.Plane)}
}

func (r *PlaneRecorder) SetClippingPlane(id core.BeamID, p core.Plane) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planes[id] = p
	r.sets++
}

func (r *PlaneRecorder) ClearClippingPlane(id core.BeamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.planes, id)
	r.clears++
}

// Plane returns the live plane of a beam
func (r *PlaneRecorder) Plane(id core.BeamID) (core.Plane, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.planes[id]
	return p, ok
}

// Counts returns how many set and clear calls were received
func (r *PlaneRecorder) Counts() (sets, clears int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets, r.clears
}
