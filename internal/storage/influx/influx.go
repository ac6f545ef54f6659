// Package influxstorage implements the storage.Backend interface by writing one
// InfluxDB point per evaluation. When the server is unreachable points are kept as
// gzipped line protocol on disk.
package influxstorage

import (
	"context"
	"fmt"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/vlbeam/occlusion/internal/config"
	"github.com/vlbeam/occlusion/internal/influx"
	"github.com/vlbeam/occlusion/pkg/core"
)

// Measurement is the name every evaluation point is written under
const Measurement = "occlusion_evaluation"

// ConnectTimeout bounds the health check made by Init
const ConnectTimeout = 5 * time.Second

// Backend writes evaluations to InfluxDB
type Backend struct {
	manager *influx.Manager
}

// New creates an InfluxDB backend. No connection is made until Init.
func New(cfg config.InfluxConfig, backupPath string, logger zerolog.Logger) *Backend {
	return &Backend{
		manager: influx.NewManager(cfg, logger, backupPath),
	}
}

func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()
	if err := b.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to influx: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.manager.Close()
}

// RecordEvaluation hands the point to the async writer
func (b *Backend) RecordEvaluation(e *core.Evaluation) error {
	return b.manager.WritePoint(EvaluationPoint(e))
}

// GetExportedFilePath returns the backup file when points were diverted to it
func (b *Backend) GetExportedFilePath() string {
	if b.manager.IsValid {
		return ""
	}
	return b.manager.BackupPath
}

// EvaluationPoint converts an evaluation to a point tagged by beam.
// The occluder tag and plane fields are only present when occluded.
func EvaluationPoint(e *core.Evaluation) *influxdb2_write.Point {
	point := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("beam", e.BeamName).
		AddTag("beamId", e.BeamID.String()).
		AddField("tick", e.Tick).
		AddField("occluded", e.Occluded).
		AddField("rays", e.Rays).
		AddField("aborted", e.Aborted).
		AddField("durationUs", e.Duration.Microseconds()).
		SetTime(e.Time)

	if e.Occluded {
		point.AddTag("occluder", string(e.Occluder)).
			AddField("distance", e.Distance).
			AddField("planeDistance", e.PlaneDistance)
	}
	return point
}
