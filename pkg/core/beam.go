// pkg/core/beam.go
package core

import (
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// BeamID identifies one beam instance
type BeamID = uuid.UUID

// Direction is one of the four peripheral sampling directions in the beam's local frame
type Direction uint

const (
	DirectionUp Direction = iota
	DirectionRight
	DirectionDown
	DirectionLeft
)

// DirectionCount is the number of peripheral sampling directions
const DirectionCount = 4

func (d Direction) String() string {
	switch d % DirectionCount {
	case DirectionUp:
		return "up"
	case DirectionRight:
		return "right"
	case DirectionDown:
		return "down"
	default:
		return "left"
	}
}

// Beam describes the cone of one beam instance in world space.
// Forward, Up and Right form an orthonormal frame; use NewBeam to build one from
// arbitrary axes.
type Beam struct {
	Origin  r3.Vector
	Forward r3.Vector
	Up      r3.Vector
	Right   r3.Vector

	RadiusStart float64
	RadiusEnd   float64
	Range       float64

	// RangeMultiplier extends the query distance past the visible range (>= 1)
	RangeMultiplier float64
}

// NewBeam builds a beam with an orthonormalised frame. Up is made perpendicular to
// forward and Right is derived as Up x Forward.
func NewBeam(origin, forward, up r3.Vector, radiusStart, radiusEnd, rng float64) Beam {
	fwd := forward.Normalize()
	u := up.Sub(fwd.Mul(up.Dot(fwd)))
	if u.Norm() == 0 {
		u = fwd.Ortho()
	}
	u = u.Normalize()

	return Beam{
		Origin:          origin,
		Forward:         fwd,
		Up:              u,
		Right:           u.Cross(fwd),
		RadiusStart:     radiusStart,
		RadiusEnd:       radiusEnd,
		Range:           rng,
		RangeMultiplier: 1,
	}
}

// Degenerate reports whether the beam has no extent to query
func (b Beam) Degenerate() bool {
	return b.Range <= 0
}

// MaxDistance is the effective query distance, Range * RangeMultiplier.
// Multipliers below 1 are treated as 1.
func (b Beam) MaxDistance() float64 {
	m := b.RangeMultiplier
	if m < 1 {
		m = 1
	}
	return b.Range * m
}

// Direction returns the world-space unit vector for a peripheral direction.
// Indices wrap around DirectionCount.
func (b Beam) Direction(d Direction) r3.Vector {
	switch d % DirectionCount {
	case DirectionUp:
		return b.Up
	case DirectionRight:
		return b.Right
	case DirectionDown:
		return b.Up.Mul(-1)
	default:
		return b.Right.Mul(-1)
	}
}

// ToLocal converts a world-space point into the beam frame (x=Right, y=Up, z=Forward)
func (b Beam) ToLocal(p r3.Vector) r3.Vector {
	return b.ToLocalDirection(p.Sub(b.Origin))
}

// ToLocalDirection converts a world-space direction into the beam frame
func (b Beam) ToLocalDirection(v r3.Vector) r3.Vector {
	return r3.Vector{X: v.Dot(b.Right), Y: v.Dot(b.Up), Z: v.Dot(b.Forward)}
}
