// pkg/core/plane.go
package core

import "github.com/golang/geo/r3"

// Plane is a half-space boundary stored as dot(Normal, x) + Distance = 0.
// Normal is unit length. Points with a positive SignedDistance lie on the side the
// normal points to.
type Plane struct {
	Normal   r3.Vector
	Distance float64
}

// NewPlane builds the plane with the given normal passing through point
func NewPlane(normal, point r3.Vector) Plane {
	n := normal.Normalize()
	return Plane{Normal: n, Distance: -n.Dot(point)}
}

// SignedDistance returns the distance from v to the plane, positive on the normal side
func (p Plane) SignedDistance(v r3.Vector) float64 {
	return p.Normal.Dot(v) + p.Distance
}

// ClosestPoint returns the point of the plane nearest to the world origin
func (p Plane) ClosestPoint() r3.Vector {
	return p.Normal.Mul(-p.Distance)
}

// Translate moves the plane by v. Moving by +k along the normal lowers Distance by k.
func (p Plane) Translate(v r3.Vector) Plane {
	return Plane{Normal: p.Normal, Distance: p.Distance - p.Normal.Dot(v)}
}

// Valid reports whether the plane has a usable normal
func (p Plane) Valid() bool {
	return p.Normal.Norm2() > 0
}
