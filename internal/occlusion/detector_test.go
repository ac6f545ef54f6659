package occlusion

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlbeam/occlusion/pkg/core"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type rayCall struct {
	origin  r3.Vector
	dir     r3.Vector
	maxDist float64
	mask    core.LayerMask
}

// scriptedQuery returns responses[i] for the i-th call, then fallback
type scriptedQuery struct {
	calls     []rayCall
	responses [][]core.Hit
	fallback  []core.Hit
	err       error
}

func (q *scriptedQuery) CastRay(_ context.Context, origin, dir r3.Vector, maxDist float64, mask core.LayerMask) ([]core.Hit, error) {
	q.calls = append(q.calls, rayCall{origin: origin, dir: dir, maxDist: maxDist, mask: mask})
	if q.err != nil {
		return nil, q.err
	}
	i := len(q.calls) - 1
	if i < len(q.responses) {
		return q.responses[i], nil
	}
	return q.fallback, nil
}

func testBeam() core.Beam {
	return core.NewBeam(r3.Vector{}, r3.Vector{Z: 1}, r3.Vector{Y: 1}, 0.1, 1.0, 10)
}

// wall is a surface squarely facing a +Z beam
func wall(dist float64) core.Hit {
	return core.Hit{
		Point:    r3.Vector{Z: dist},
		Normal:   r3.Vector{Z: -1},
		Distance: dist,
		Area:     1,
		Occluder: "wall",
	}
}

func fullPathConfig() core.OcclusionConfig {
	cfg := core.DefaultOcclusionConfig()
	cfg.MinSurfaceRatio = 0.8
	return cfg.Sanitize()
}

func newTestDetector(t *testing.T, q core.SpatialQuery) *Detector {
	t.Helper()
	d, err := New(q, nil)
	require.NoError(t, err)
	return d
}

func TestEvaluate_NoHitClearsPlane(t *testing.T) {
	q := &scriptedQuery{}
	d := newTestDetector(t, q)

	state := NewState()
	state.SetPlane(core.NewPlane(r3.Vector{Z: -1}, r3.Vector{Z: 4}))

	out := d.Evaluate(context.Background(), testBeam(), core.DefaultOcclusionConfig(), state)

	assert.False(t, out.Occluded)
	assert.Nil(t, state.CurrentPlane)
	assert.Equal(t, 1, out.Rays)
}

func TestEvaluate_ExcludedHitsIgnored(t *testing.T) {
	trigger := wall(2)
	trigger.Excluded = true
	q := &scriptedQuery{fallback: []core.Hit{trigger}}
	d := newTestDetector(t, q)

	out := d.Evaluate(context.Background(), testBeam(), core.DefaultOcclusionConfig(), NewState())

	assert.False(t, out.Occluded)
}

func TestEvaluate_NearestCandidateWins(t *testing.T) {
	far := wall(5)
	far.Occluder = "far"
	near := wall(2)
	near.Occluder = "near"
	q := &scriptedQuery{fallback: []core.Hit{far, near}}
	d := newTestDetector(t, q)

	out := d.Evaluate(context.Background(), testBeam(), core.DefaultOcclusionConfig(), NewState())

	require.True(t, out.Occluded)
	assert.Equal(t, core.OccluderID("near"), out.Hit.Occluder)
	assert.Equal(t, 2.0, out.Hit.Distance)
}

func TestEvaluate_FastPathIssuesOneRay(t *testing.T) {
	tests := []struct {
		name string
		hits []core.Hit
	}{
		{"empty scene", nil},
		{"valid wall", []core.Hit{wall(3)}},
		{"several walls", []core.Hit{wall(3), wall(4), wall(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &scriptedQuery{fallback: tt.hits}
			d := newTestDetector(t, q)

			cfg := core.DefaultOcclusionConfig()
			cfg.MinSurfaceRatio = 0.5
			d.Evaluate(context.Background(), testBeam(), cfg.Sanitize(), NewState())

			assert.Len(t, q.calls, 1)
		})
	}
}

func TestEvaluate_FullPathIssuesFiveRays(t *testing.T) {
	q := &scriptedQuery{fallback: []core.Hit{wall(3)}}
	d := newTestDetector(t, q)

	out := d.Evaluate(context.Background(), testBeam(), fullPathConfig(), NewState())

	assert.True(t, out.Occluded)
	assert.Len(t, q.calls, 5)
	assert.Equal(t, 5, out.Rays)
}

func TestEvaluate_AbortSkipsRemainingPeripheralRays(t *testing.T) {
	q := &scriptedQuery{responses: [][]core.Hit{
		{wall(2)}, // center
		{wall(2)}, // up
		nil,       // right: miss
		{wall(2)},
		{wall(2)},
	}}
	d := newTestDetector(t, q)
	state := NewState()

	out := d.Evaluate(context.Background(), testBeam(), fullPathConfig(), state)

	assert.False(t, out.Occluded)
	assert.True(t, out.Aborted)
	assert.Equal(t, core.DirectionRight, out.FailedDirection)
	assert.Len(t, q.calls, 3)
	assert.Equal(t, uint(core.DirectionRight), state.LastDirectionRotation)
	assert.Nil(t, state.CurrentPlane)
}

func TestEvaluate_FarthestWins(t *testing.T) {
	up := wall(1.0)
	right := wall(3.0)
	right.Occluder = "far-edge"
	down := wall(2.5)
	left := wall(1.5)
	q := &scriptedQuery{responses: [][]core.Hit{{wall(2.0)}, {up}, {right}, {down}, {left}}}
	d := newTestDetector(t, q)

	out := d.Evaluate(context.Background(), testBeam(), fullPathConfig(), NewState())

	require.True(t, out.Occluded)
	assert.Equal(t, 3.0, out.Hit.Distance)
	assert.Equal(t, core.OccluderID("far-edge"), out.Hit.Occluder)
}

func TestEvaluate_CenterKeptWhenFarthest(t *testing.T) {
	q := &scriptedQuery{responses: [][]core.Hit{{wall(4.0)}, {wall(1)}, {wall(2)}, {wall(3)}, {wall(3.5)}}}
	d := newTestDetector(t, q)

	out := d.Evaluate(context.Background(), testBeam(), fullPathConfig(), NewState())

	require.True(t, out.Occluded)
	assert.Equal(t, 4.0, out.Hit.Distance)
}

func TestEvaluate_DeviationFilter(t *testing.T) {
	// dot(normal, -forward) = 0.2
	slanted := wall(2)
	slanted.Normal = r3.Vector{Y: 0.9797958971, Z: -0.2}
	q := &scriptedQuery{fallback: []core.Hit{slanted}}
	d := newTestDetector(t, q)

	cfg := core.DefaultOcclusionConfig()
	cfg.MaxSurfaceDeviation = 0.25

	out := d.Evaluate(context.Background(), testBeam(), cfg.Sanitize(), NewState())
	assert.False(t, out.Occluded)

	cfg.MaxSurfaceDeviation = 0.15
	out = d.Evaluate(context.Background(), testBeam(), cfg.Sanitize(), NewState())
	assert.True(t, out.Occluded)
}

func TestEvaluate_DeviationChecksOnlyNearest(t *testing.T) {
	slanted := wall(1)
	slanted.Normal = r3.Vector{X: 1}
	q := &scriptedQuery{fallback: []core.Hit{slanted, wall(3)}}
	d := newTestDetector(t, q)

	out := d.Evaluate(context.Background(), testBeam(), core.DefaultOcclusionConfig(), NewState())

	assert.False(t, out.Occluded, "a grazing nearest surface is not skipped in favour of a farther one")
}

func TestEvaluate_AreaFilter(t *testing.T) {
	pebble := wall(1)
	pebble.Area = 0.01
	pebble.Occluder = "pebble"
	q := &scriptedQuery{fallback: []core.Hit{pebble, wall(4)}}
	d := newTestDetector(t, q)

	cfg := core.DefaultOcclusionConfig()
	cfg.MinOccluderArea = 0.05

	out := d.Evaluate(context.Background(), testBeam(), cfg.Sanitize(), NewState())

	require.True(t, out.Occluded)
	assert.Equal(t, core.OccluderID("wall"), out.Hit.Occluder)
	assert.Equal(t, 4.0, out.Hit.Distance)
}

func TestEvaluate_RotationPersistence(t *testing.T) {
	q := &scriptedQuery{responses: [][]core.Hit{
		{wall(2)}, {wall(2)}, {wall(2)}, nil, // abort on down (index 2)
	}, fallback: []core.Hit{wall(2)}}
	d := newTestDetector(t, q)
	state := NewState()
	beam := testBeam()
	cfg := fullPathConfig()

	out := d.Evaluate(context.Background(), beam, cfg, state)
	require.True(t, out.Aborted)
	require.Equal(t, uint(2), state.LastDirectionRotation)

	q.calls = nil
	q.responses = nil
	out = d.Evaluate(context.Background(), beam, cfg, state)
	require.True(t, out.Occluded)
	require.Len(t, q.calls, 5)

	// first peripheral ray starts below the origin (down), then left, up, right
	scale := cfg.PeripheralScale() * beam.RadiusStart
	assert.InDelta(t, -scale, q.calls[1].origin.Y, 1e-9)
	assert.InDelta(t, -scale, q.calls[2].origin.X, 1e-9)
	assert.InDelta(t, scale, q.calls[3].origin.Y, 1e-9)
	assert.InDelta(t, scale, q.calls[4].origin.X, 1e-9)
}

func TestEvaluate_RotationUnchangedOnSuccessOrMiss(t *testing.T) {
	d := newTestDetector(t, &scriptedQuery{fallback: []core.Hit{wall(2)}})
	state := NewState()
	state.LastDirectionRotation = 3

	d.Evaluate(context.Background(), testBeam(), fullPathConfig(), state)
	assert.Equal(t, uint(3), state.LastDirectionRotation)

	d = newTestDetector(t, &scriptedQuery{})
	d.Evaluate(context.Background(), testBeam(), fullPathConfig(), state)
	assert.Equal(t, uint(3), state.LastDirectionRotation)
}

func TestEvaluate_PeripheralRayGeometry(t *testing.T) {
	q := &scriptedQuery{fallback: []core.Hit{wall(2)}}
	d := newTestDetector(t, q)
	beam := testBeam()
	cfg := fullPathConfig() // scale 0.6

	d.Evaluate(context.Background(), beam, cfg, NewState())
	require.Len(t, q.calls, 5)

	up := q.calls[1]
	start := r3.Vector{Y: 0.1 * 0.6}
	target := r3.Vector{Y: 1.0 * 0.6, Z: 10}
	want := target.Sub(start).Normalize()

	assertVecNear(t, start, up.origin)
	assertVecNear(t, want, up.dir)
	assert.InDelta(t, 10.0, up.maxDist, 1e-9)
}

func TestEvaluate_QueryUsesMaskAndMultiplier(t *testing.T) {
	q := &scriptedQuery{}
	d := newTestDetector(t, q)
	beam := testBeam()
	beam.RangeMultiplier = 1.5

	cfg := core.DefaultOcclusionConfig()
	cfg.QueryMask = core.LayerMask(0b101)

	d.Evaluate(context.Background(), beam, cfg, NewState())

	require.Len(t, q.calls, 1)
	assert.InDelta(t, 15.0, q.calls[0].maxDist, 1e-9)
	assert.Equal(t, core.LayerMask(0b101), q.calls[0].mask)
	assertVecNear(t, r3.Vector{Z: 1}, q.calls[0].dir)
}

func TestEvaluate_QueryErrorIsNoOcclusion(t *testing.T) {
	q := &scriptedQuery{err: errors.New("backend unavailable")}
	d := newTestDetector(t, q)
	state := NewState()
	state.SetPlane(core.Plane{Normal: r3.Vector{Z: -1}})

	out := d.Evaluate(context.Background(), testBeam(), core.DefaultOcclusionConfig(), state)

	assert.False(t, out.Occluded)
	assert.False(t, state.Occluded())
}

func TestEvaluate_DegenerateBeamSkipsQuery(t *testing.T) {
	q := &scriptedQuery{fallback: []core.Hit{wall(1)}}
	d := newTestDetector(t, q)
	beam := testBeam()
	beam.Range = 0

	out := d.Evaluate(context.Background(), beam, core.DefaultOcclusionConfig(), NewState())

	assert.False(t, out.Occluded)
	assert.Empty(t, q.calls)
	assert.Zero(t, out.Rays)
}

func TestEvaluate_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	d, err := New(&scriptedQuery{fallback: []core.Hit{wall(2)}}, nil, WithMeterProvider(mp))
	require.NoError(t, err)

	d.Evaluate(context.Background(), testBeam(), fullPathConfig(), NewState())
	d.Evaluate(context.Background(), testBeam(), core.DefaultOcclusionConfig(), NewState())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(6), sumInt64(rm, "occlusion.rays.cast"))
	assert.Equal(t, int64(2), sumInt64(rm, "occlusion.evaluations"))
}

func assertVecNear(t *testing.T, want, got r3.Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

func sumInt64(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
