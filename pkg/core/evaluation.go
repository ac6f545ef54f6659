// pkg/core/evaluation.go
package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// Evaluation is the diagnostics record of one detector run
type Evaluation struct {
	BeamID   BeamID
	BeamName string
	Tick     int64
	Time     time.Time

	Occluded bool
	Occluder OccluderID
	HitPoint r3.Vector
	Distance float64

	// Plane is the beam-local clipping plane, nil when not occluded
	Plane *Plane

	// PlaneDistance is the distance from the beam origin to the plane along the beam axis
	PlaneDistance float64

	Rays     int
	Aborted  bool
	Duration time.Duration
}
