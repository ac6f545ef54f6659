package occlusion

import "github.com/vlbeam/occlusion/pkg/core"

// State is the mutable occlusion state of one beam instance. It is owned by that
// instance and never shared between beams.
type State struct {
	// FramesUntilNextCheck counts down to the next throttled evaluation
	FramesUntilNextCheck int

	// LastDirectionRotation is the peripheral direction sampled first. It is only
	// updated when a peripheral sample aborts an evaluation.
	LastDirectionRotation uint

	// CurrentPlane is the live world-space clipping plane, nil when not occluded
	CurrentPlane *core.Plane
}

// NewState returns a state that evaluates on the first tick
func NewState() *State {
	return &State{}
}

// Occluded reports whether a clipping plane is active
func (s State) Occluded() bool {
	return s.CurrentPlane != nil
}

// SetPlane records the live plane
func (s *State) SetPlane(p core.Plane) {
	s.CurrentPlane = &p
}

// ClearPlane turns occlusion off
func (s *State) ClearPlane() {
	s.CurrentPlane = nil
}

// Due advances the throttle counter by one tick and reports whether the beam must
// be evaluated on this tick. The counter is reset to interval exactly when it has
// run out, so with interval 3 the beam is evaluated on ticks 1, 4, 7 and so on.
func (s *State) Due(interval int) bool {
	due := s.FramesUntilNextCheck <= 0
	if due {
		s.FramesUntilNextCheck = interval
	}
	s.FramesUntilNextCheck--
	return due
}

// Reset returns the state to its freshly activated form
func (s *State) Reset() {
	*s = State{}
}
