// pkg/core/hit.go
package core

import "github.com/golang/geo/r3"

// OccluderID names the scene surface that produced a hit
type OccluderID string

// Hit is one ray intersection reported by the spatial query service
type Hit struct {
	Point    r3.Vector
	Normal   r3.Vector
	Distance float64

	// Excluded marks non-colliding trigger surfaces
	Excluded bool

	// Area is the projected cross-sectional area of the surface's bounds
	Area float64

	Occluder OccluderID
}

// Facing returns dot(normal, -forward): 1 for a surface squarely facing the beam,
// 0 for a surface parallel to it.
func (h Hit) Facing(forward r3.Vector) float64 {
	return h.Normal.Dot(forward.Mul(-1))
}
