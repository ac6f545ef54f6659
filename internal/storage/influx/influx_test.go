package influxstorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlbeam/occlusion/internal/config"
	"github.com/vlbeam/occlusion/pkg/core"
)

func TestEvaluationPoint_Occluded(t *testing.T) {
	id := uuid.MustParse("7b0a8a53-7f0e-4c4b-9d3e-1f8a2c1a0b01")
	ev := &core.Evaluation{
		BeamID: id, BeamName: "spot", Tick: 7, Time: time.Unix(0, 1000),
		Occluded: true, Occluder: "wall", Distance: 5, PlaneDistance: 4.9,
		Rays: 5, Duration: 3 * time.Microsecond,
	}

	line := influxdb2_write.PointToLineProtocol(EvaluationPoint(ev), time.Nanosecond)

	assert.Contains(t, line, Measurement+",beam=spot,beamId="+id.String()+",occluder=wall ")
	assert.Contains(t, line, "tick=7i")
	assert.Contains(t, line, "occluded=true")
	assert.Contains(t, line, "planeDistance=4.9")
	assert.Contains(t, line, "durationUs=3i")
	assert.Contains(t, line, " 1000")
}

func TestEvaluationPoint_Clear(t *testing.T) {
	ev := &core.Evaluation{BeamID: uuid.New(), BeamName: "wash", Tick: 1, Time: time.Unix(1, 0), Rays: 1}

	point := EvaluationPoint(ev)

	for _, tag := range point.TagList() {
		assert.NotEqual(t, "occluder", tag.Key)
	}
	for _, field := range point.FieldList() {
		assert.NotEqual(t, "planeDistance", field.Key)
	}
}

func TestBackend_BackupWhenUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occlusion.lp.gz")
	b := New(config.InfluxConfig{Host: "127.0.0.1", Port: "1", Protocol: "http", Org: "vlbeam", Bucket: "occlusion"}, path, zerolog.Nop())

	require.NoError(t, b.Init())
	require.NoError(t, b.RecordEvaluation(&core.Evaluation{BeamID: uuid.New(), BeamName: "spot", Tick: 1, Time: time.Now()}))
	require.NoError(t, b.Close())

	assert.Equal(t, path, b.GetExportedFilePath())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
