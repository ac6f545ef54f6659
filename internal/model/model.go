package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Beam{},
	&Evaluation{},
}

// Beam is registered once per instance the first time it reports an evaluation
type Beam struct {
	ID        string    `json:"id" gorm:"primarykey;size:36"`
	Name      string    `json:"name" gorm:"size:64"`
	FirstSeen time.Time `json:"firstSeen"`
}

func (*Beam) TableName() string {
	return "beams"
}

// Evaluation is one occlusion detector run
type Evaluation struct {
	ID     uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time   time.Time `json:"time" gorm:"index:idx_evaluation_time"`
	BeamID string    `json:"beamId" gorm:"size:36;index:idx_evaluation_beam_id"`
	Tick   int64     `json:"tick" gorm:"index:idx_evaluation_tick"`

	Occluded      bool           `json:"occluded" gorm:"default:false"`
	OccluderID    string         `json:"occluderId" gorm:"size:128"`
	HitPoint      geom.Point     `json:"hitPoint"`      // world-space hit, empty when not occluded
	Distance      float64        `json:"distance"`      // ray distance to the authoritative hit
	Plane         datatypes.JSON `json:"plane"`         // beam-local plane {normal:[x,y,z], distance}
	PlaneDistance float64        `json:"planeDistance"` // distance along the beam axis to the plane
	Rays          uint8          `json:"rays"`
	Aborted       bool           `json:"aborted" gorm:"default:false"`
	DurationUs    int64          `json:"durationUs"`
}

func (*Evaluation) TableName() string {
	return "occlusion_evaluations"
}
