// pkg/core/query.go
package core

import (
	"context"

	"github.com/golang/geo/r3"
)

// LayerMask is a bit set of scene query layers
type LayerMask uint32

// AllLayers matches every layer
const AllLayers LayerMask = ^LayerMask(0)

// Contains reports whether layer (0-31) is part of the mask
func (m LayerMask) Contains(layer int) bool {
	if layer < 0 || layer > 31 {
		return false
	}
	return m&(1<<uint(layer)) != 0
}

// SpatialQuery is the scene query backend consumed by the detector.
// CastRay returns every surface intersected within maxDistance along the unit
// direction. Results are unordered and may be empty. Implementations used with
// parallel evaluation must allow concurrent calls.
type SpatialQuery interface {
	CastRay(ctx context.Context, origin, direction r3.Vector, maxDistance float64, mask LayerMask) ([]Hit, error)
}

// Renderer receives the clipping state of a beam. Planes are given in the beam's
// local frame.
type Renderer interface {
	SetClippingPlane(id BeamID, plane Plane)
	ClearClippingPlane(id BeamID)
}
