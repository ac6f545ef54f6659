// Package v1 contains the v1 export format for beam occlusion diagnostics.
package v1

import "time"

// FormatVersion is written into every export
const FormatVersion = "1"

// Export is the root JSON structure for v1 format
type Export struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	LastTick  int64     `json:"lastTick"`
	Beams     []Beam    `json:"beams"`
}

// Beam summarises one beam and lists its evaluations
type Beam struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Evaluations int    `json:"evaluations"`
	Occluded    int    `json:"occluded"`
	Aborted     int    `json:"aborted"`
	RaysCast    int    `json:"raysCast"`

	// OccluderTicks counts occluded evaluations per occluder
	OccluderTicks map[string]int `json:"occluderTicks"`

	// Records are [tick, occluded, occluderId, distance, planeDistance, rays, aborted]
	Records [][]any `json:"records"`
}
