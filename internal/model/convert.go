package model

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/vlbeam/occlusion/pkg/core"
	"gorm.io/datatypes"
)

// PlaneJSON is the stored form of a clipping plane
type PlaneJSON struct {
	Normal   [3]float64 `json:"normal"`
	Distance float64    `json:"distance"`
}

// PointXYZ converts a vector to a 3D point. NaN and infinite coordinates are rejected.
func PointXYZ(v r3.Vector) (geom.Point, error) {
	coords := geom.Coordinates{XY: geom.XY{X: v.X, Y: v.Y}, Z: v.Z, Type: geom.DimXYZ}
	pt, err := geom.NewPoint(coords)
	if err != nil {
		return geom.Point{}, fmt.Errorf("invalid hit point: %w", err)
	}
	return pt, nil
}

// EncodePlane converts a plane for storage. A nil plane is stored as JSON null.
func EncodePlane(p *core.Plane) datatypes.JSON {
	if p == nil {
		return datatypes.JSON("null")
	}
	data, err := json.Marshal(PlaneJSON{
		Normal:   [3]float64{p.Normal.X, p.Normal.Y, p.Normal.Z},
		Distance: p.Distance,
	})
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}

// DecodePlane is the inverse of EncodePlane
func DecodePlane(data datatypes.JSON) (*core.Plane, error) {
	var pj *PlaneJSON
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, err
	}
	if pj == nil {
		return nil, nil
	}
	return &core.Plane{
		Normal:   r3.Vector{X: pj.Normal[0], Y: pj.Normal[1], Z: pj.Normal[2]},
		Distance: pj.Distance,
	}, nil
}

// FromEvaluation converts a diagnostics record to its database row
func FromEvaluation(ev core.Evaluation) (Evaluation, error) {
	row := Evaluation{
		Time:          ev.Time,
		BeamID:        ev.BeamID.String(),
		Tick:          ev.Tick,
		Occluded:      ev.Occluded,
		OccluderID:    string(ev.Occluder),
		Distance:      ev.Distance,
		Plane:         EncodePlane(ev.Plane),
		PlaneDistance: ev.PlaneDistance,
		Rays:          uint8(min(ev.Rays, 255)),
		Aborted:       ev.Aborted,
		DurationUs:    ev.Duration.Microseconds(),
	}
	if ev.Occluded {
		pt, err := PointXYZ(ev.HitPoint)
		if err != nil {
			return Evaluation{}, err
		}
		row.HitPoint = pt
	}
	return row, nil
}

// BeamFromEvaluation builds the beam row referenced by an evaluation
func BeamFromEvaluation(ev core.Evaluation) Beam {
	return Beam{
		ID:        ev.BeamID.String(),
		Name:      ev.BeamName,
		FirstSeen: ev.Time,
	}
}
