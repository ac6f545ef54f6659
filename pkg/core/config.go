// pkg/core/config.go
package core

import (
	"fmt"
	"strings"
)

// PlaneAlignment selects how the clipping plane is oriented
type PlaneAlignment int

const (
	// SurfaceAligned uses the occluder's normal. Best for large flat occluders.
	SurfaceAligned PlaneAlignment = iota
	// BeamAligned keeps the plane perpendicular to the beam. Better for corners.
	BeamAligned
)

func (a PlaneAlignment) String() string {
	switch a {
	case BeamAligned:
		return "beam"
	default:
		return "surface"
	}
}

// ParsePlaneAlignment accepts "surface" or "beam" (case-insensitive)
func ParsePlaneAlignment(s string) (PlaneAlignment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "surface", "surfacealigned":
		return SurfaceAligned, nil
	case "beam", "beamaligned":
		return BeamAligned, nil
	default:
		return SurfaceAligned, fmt.Errorf("unknown plane alignment: %q", s)
	}
}

// Occlusion tunables and their limits
const (
	DefaultUpdateInterval      = 3
	MinUpdateInterval          = 1
	MaxUpdateInterval          = 60
	DefaultMinSurfaceRatio     = 0.5
	DefaultMaxSurfaceDeviation = 0.25 // cos(~75 deg)
	DefaultPlaneOffset         = 0.1

	// PeripheralRatioThreshold is the surface ratio above which peripheral rays are cast
	PeripheralRatioThreshold = 0.5
)

// OcclusionConfig holds the per-beam occlusion tunables
type OcclusionConfig struct {
	QueryMask           LayerMask
	MinOccluderArea     float64
	UpdateInterval      int
	MinSurfaceRatio     float64
	MaxSurfaceDeviation float64
	PlaneAlignment      PlaneAlignment
	PlaneOffset         float64
}

// DefaultOcclusionConfig returns the stock tunables
func DefaultOcclusionConfig() OcclusionConfig {
	return OcclusionConfig{
		QueryMask:           AllLayers,
		MinOccluderArea:     0,
		UpdateInterval:      DefaultUpdateInterval,
		MinSurfaceRatio:     DefaultMinSurfaceRatio,
		MaxSurfaceDeviation: DefaultMaxSurfaceDeviation,
		PlaneAlignment:      SurfaceAligned,
		PlaneOffset:         DefaultPlaneOffset,
	}
}

// Sanitize clamps every field into its valid range. Out of range values are
// corrected, never reported.
func (c OcclusionConfig) Sanitize() OcclusionConfig {
	c.MinOccluderArea = max(c.MinOccluderArea, 0)
	c.UpdateInterval = min(max(c.UpdateInterval, MinUpdateInterval), MaxUpdateInterval)
	c.MinSurfaceRatio = min(max(c.MinSurfaceRatio, PeripheralRatioThreshold), 1)
	c.MaxSurfaceDeviation = min(max(c.MaxSurfaceDeviation, -1), 1)
	if c.PlaneAlignment != BeamAligned {
		c.PlaneAlignment = SurfaceAligned
	}
	return c
}

// NeedsPeripheral reports whether the surface ratio requires peripheral sampling
func (c OcclusionConfig) NeedsPeripheral() bool {
	return c.MinSurfaceRatio > PeripheralRatioThreshold
}

// PeripheralScale is the fraction of the cone radius at which peripheral rays are cast
func (c OcclusionConfig) PeripheralScale() float64 {
	return 2*c.MinSurfaceRatio - 1
}
