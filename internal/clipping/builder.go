// Package clipping turns a validated occlusion hit into the clipping plane handed
// to the renderer.
package clipping

import (
	"math"

	"github.com/vlbeam/occlusion/pkg/core"
)

// BuildPlane converts the authoritative hit into a world-space plane.
//
// SurfaceAligned planes take the hit normal, BeamAligned planes face back along the
// beam axis. The plane is then moved by offset along its own normal; for a valid hit
// the normal faces the beam, so a positive offset pulls the cut toward the origin and
// avoids z-fighting against the occluder.
func BuildPlane(hit core.Hit, beam core.Beam, alignment core.PlaneAlignment, offset float64) core.Plane {
	normal := hit.Normal
	if alignment == core.BeamAligned || normal.Norm2() == 0 {
		normal = beam.Forward.Mul(-1)
	}

	plane := core.NewPlane(normal, hit.Point)
	return plane.Translate(plane.Normal.Mul(offset))
}

// ToBeamSpace re-expresses a world-space plane in the beam frame
// (x = Right, y = Up, z = Forward, origin at the beam origin).
func ToBeamSpace(plane core.Plane, beam core.Beam) core.Plane {
	return core.Plane{
		Normal:   beam.ToLocalDirection(plane.Normal),
		Distance: plane.Distance + plane.Normal.Dot(beam.Origin),
	}
}

// AxisDistance returns how far along the beam axis the plane cuts the beam.
// The second result is false when the axis never meets the plane in front of the origin.
func AxisDistance(plane core.Plane, beam core.Beam) (float64, bool) {
	denom := plane.Normal.Dot(beam.Forward)
	if math.Abs(denom) < 1e-9 {
		return 0, false
	}
	t := -plane.SignedDistance(beam.Origin) / denom
	if t < 0 {
		return 0, false
	}
	return t, true
}
