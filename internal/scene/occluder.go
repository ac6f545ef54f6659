package scene

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/vlbeam/occlusion/pkg/core"
)

// Occluder is an axis-aligned box in the reference scene
type Occluder struct {
	ID  core.OccluderID
	Min r3.Vector
	Max r3.Vector

	// Layer is the query layer (0-31)
	Layer int

	// Trigger boxes are reported as excluded hits
	Trigger bool

	// Velocity is applied by Scene.Advance, in units per second
	Velocity r3.Vector
}

// NewOccluder builds a box from two opposite corners in any order
func NewOccluder(id core.OccluderID, a, b r3.Vector) Occluder {
	return Occluder{
		ID:  id,
		Min: r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Size returns the box extents
func (o Occluder) Size() r3.Vector {
	return o.Max.Sub(o.Min)
}

func (o Occluder) Center() r3.Vector {
	return o.Min.Add(o.Max).Mul(0.5)
}

// Area is the largest of the three axis-aligned face areas
func (o Occluder) Area() float64 {
	s := o.Size()
	return math.Max(s.X*s.Y, math.Max(s.Y*s.Z, s.X*s.Z))
}

// Translate returns the box moved by delta
func (o Occluder) Translate(delta r3.Vector) Occluder {
	o.Min = o.Min.Add(delta)
	o.Max = o.Max.Add(delta)
	return o
}

// intersect runs the slab test. It returns the entry distance and the outward face
// normal at the entry point. Rays starting inside the box do not hit it.
func (o Occluder) intersect(origin, dir r3.Vector, maxDist float64) (float64, r3.Vector, bool) {
	tNear := math.Inf(-1)
	tFar := math.Inf(1)
	var normal r3.Vector

	axes := [3]struct {
		o, d, lo, hi float64
		unit         r3.Vector
	}{
		{origin.X, dir.X, o.Min.X, o.Max.X, r3.Vector{X: 1}},
		{origin.Y, dir.Y, o.Min.Y, o.Max.Y, r3.Vector{Y: 1}},
		{origin.Z, dir.Z, o.Min.Z, o.Max.Z, r3.Vector{Z: 1}},
	}

	for _, a := range axes {
		if math.Abs(a.d) < 1e-12 {
			if a.o < a.lo || a.o > a.hi {
				return 0, r3.Vector{}, false
			}
			continue
		}

		t1 := (a.lo - a.o) / a.d
		t2 := (a.hi - a.o) / a.d
		// entering through the min face means the face points toward -axis
		n := a.unit.Mul(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			n = a.unit
		}
		if t1 > tNear {
			tNear = t1
			normal = n
		}
		tFar = math.Min(tFar, t2)
	}

	if tNear > tFar || tNear < 0 || tNear > maxDist {
		return 0, r3.Vector{}, false
	}
	return tNear, normal, true
}
