package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlbeam/occlusion/internal/beam"
	"github.com/vlbeam/occlusion/internal/diagnostics"
	"github.com/vlbeam/occlusion/internal/occlusion"
	"github.com/vlbeam/occlusion/pkg/core"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// countingQuery reports a wall straight ahead and counts calls
type countingQuery struct {
	calls atomic.Int64
	miss  atomic.Bool
}

func (q *countingQuery) CastRay(_ context.Context, origin, dir r3.Vector, _ float64, _ core.LayerMask) ([]core.Hit, error) {
	q.calls.Add(1)
	if q.miss.Load() {
		return nil, nil
	}
	return []core.Hit{{Point: origin.Add(dir.Mul(4)), Normal: r3.Vector{Z: -1}, Distance: 4, Area: 1, Occluder: "wall"}}, nil
}

// tickLog records the tick of every evaluation per beam
type tickLog struct {
	mu    sync.Mutex
	ticks map[core.BeamID][]int64
}

func newTickLog() *tickLog {
	return &tickLog{ticks: make(map[core.BeamID][]int64)}
}

func (l *tickLog) Record(ev core.Evaluation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks[ev.BeamID] = append(l.ticks[ev.BeamID], ev.Tick)
}

func (l *tickLog) get(id core.BeamID) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks[id]
}

type barrierFunc func()

func (f barrierFunc) ApplyPending() { f() }

func newInstance(t *testing.T, q core.SpatialQuery, interval int, sink diagnostics.Sink) *beam.Instance {
	t.Helper()
	det, err := occlusion.New(q, nil)
	require.NoError(t, err)
	cfg := core.DefaultOcclusionConfig()
	cfg.UpdateInterval = interval
	b := core.NewBeam(r3.Vector{}, r3.Vector{Z: 1}, r3.Vector{Y: 1}, 0.1, 1, 10)
	in := beam.New("beam", b, cfg, det, beam.NewPlaneRecorder(), beam.WithSink(sink))
	in.Activate()
	return in
}

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func runTicks(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}
}

func TestScheduler_ActivePeriodicity(t *testing.T) {
	log := newTickLog()
	in := newInstance(t, &countingQuery{}, 3, log)
	s := newTestScheduler(t)
	require.NoError(t, s.Add(in))

	runTicks(t, s, 9)

	assert.Equal(t, []int64{1, 4, 7}, log.get(in.ID()))
}

func TestScheduler_IndependentIntervals(t *testing.T) {
	log := newTickLog()
	q := &countingQuery{}
	a := newInstance(t, q, 1, log)
	b := newInstance(t, q, 4, log)
	s := newTestScheduler(t)
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	runTicks(t, s, 5)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, log.get(a.ID()))
	assert.Equal(t, []int64{1, 5}, log.get(b.ID()))
}

func TestScheduler_InactiveSkipped(t *testing.T) {
	q := &countingQuery{}
	in := newInstance(t, q, 1, nil)
	in.Deactivate()
	s := newTestScheduler(t)
	require.NoError(t, s.Add(in))

	runTicks(t, s, 3)

	assert.Zero(t, q.calls.Load())
	assert.Zero(t, s.LastPass().Evaluated)
}

func TestScheduler_PreviewEveryTick(t *testing.T) {
	log := newTickLog()
	in := newInstance(t, &countingQuery{}, 60, log)
	s := newTestScheduler(t, WithMode(ModePreview), WithPreviewPolicy(PreviewEveryTick))
	require.NoError(t, s.Add(in))

	runTicks(t, s, 4)

	assert.Equal(t, []int64{1, 2, 3, 4}, log.get(in.ID()))
}

func TestScheduler_PreviewForceOff(t *testing.T) {
	q := &countingQuery{}
	in := newInstance(t, q, 1, nil)
	s := newTestScheduler(t)
	require.NoError(t, s.Add(in))

	runTicks(t, s, 1)
	require.True(t, in.State().Occluded())
	calls := q.calls.Load()

	s.SetMode(ModePreview)
	s.SetPreviewPolicy(PreviewForceOff)
	runTicks(t, s, 3)

	assert.Equal(t, calls, q.calls.Load(), "force off must not query")
	assert.False(t, in.State().Occluded())
	assert.Equal(t, 1, s.LastPass().ForcedOff)
}

func TestScheduler_BarrierRunsBeforeEvaluation(t *testing.T) {
	q := &countingQuery{}
	in := newInstance(t, q, 1, nil)

	var order []string
	barrier := barrierFunc(func() {
		order = append(order, "barrier")
		q.miss.Store(true)
	})
	s := newTestScheduler(t, WithBarrier(barrier))
	require.NoError(t, s.Add(in))

	runTicks(t, s, 2)

	assert.Equal(t, []string{"barrier", "barrier"}, order)
	assert.False(t, in.State().Occluded(), "scene edit applied before the first query")
}

func TestScheduler_DuplicateInstance(t *testing.T) {
	in := newInstance(t, &countingQuery{}, 1, nil)
	s := newTestScheduler(t)

	require.NoError(t, s.Add(in))
	err := s.Add(in)

	assert.ErrorIs(t, err, ErrDuplicateInstance)
	assert.Len(t, s.Instances(), 1)
}

func TestScheduler_Parallel(t *testing.T) {
	log := newTickLog()
	q := &countingQuery{}
	s := newTestScheduler(t, WithParallelism(4))

	var ids []core.BeamID
	for i := 0; i < 16; i++ {
		in := newInstance(t, q, 3, log)
		require.NoError(t, s.Add(in))
		ids = append(ids, in.ID())
	}

	runTicks(t, s, 9)

	for _, id := range ids {
		assert.Equal(t, []int64{1, 4, 7}, log.get(id))
	}
	assert.Equal(t, int64(16*3), q.calls.Load())
	assert.Equal(t, 16, s.ActiveCount())
}

func TestScheduler_CancelledContext(t *testing.T) {
	for _, n := range []int{1, 4} {
		q := &countingQuery{}
		s := newTestScheduler(t, WithParallelism(n))
		require.NoError(t, s.Add(newInstance(t, q, 1, nil)))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Tick(ctx)
		assert.True(t, errors.Is(err, context.Canceled), "parallelism %d", n)
		assert.Zero(t, q.calls.Load())
	}
}

func TestScheduler_TickCounterAndLogAttrs(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Add(newInstance(t, &countingQuery{}, 1, nil)))

	runTicks(t, s, 3)

	assert.Equal(t, int64(3), s.CurrentTick())
	attrs := s.LogAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "tick", attrs[0].Key)
	assert.Equal(t, int64(3), attrs[0].Value.Int64())
	assert.Equal(t, int64(1), attrs[1].Value.Int64())
}

func TestScheduler_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := newTestScheduler(t, WithMeterProvider(mp))
	require.NoError(t, s.Add(newInstance(t, &countingQuery{}, 2, nil)))

	runTicks(t, s, 4)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(4), sumInt64(rm, "scheduler.ticks"))
	assert.Equal(t, int64(2), sumInt64(rm, "scheduler.evaluations"))

	var active int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if g, ok := m.Data.(metricdata.Gauge[int64]); ok && m.Name == "scheduler.instances.active" {
				active = g.DataPoints[0].Value
			}
		}
	}
	assert.Equal(t, int64(1), active)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Preview")
	require.NoError(t, err)
	assert.Equal(t, ModePreview, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)

	p, err := ParsePreviewPolicy("forceOff")
	require.NoError(t, err)
	assert.Equal(t, PreviewForceOff, p)
	assert.Equal(t, "forceOff", p.String())
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
