// Package beam holds the lifecycle of one volumetric beam: its geometry, occlusion
// tunables and clipping state.
package beam

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vlbeam/occlusion/internal/clipping"
	"github.com/vlbeam/occlusion/internal/diagnostics"
	"github.com/vlbeam/occlusion/internal/occlusion"
	"github.com/vlbeam/occlusion/pkg/core"
)

// Option configures an Instance
type Option func(*Instance)

// WithID sets a fixed instance ID instead of a random one
func WithID(id core.BeamID) Option {
	return func(in *Instance) { in.id = id }
}

// WithSink attaches a diagnostics sink. Without one no records are produced.
func WithSink(s diagnostics.Sink) Option {
	return func(in *Instance) { in.sink = s }
}

// WithLogger sets the instance logger
func WithLogger(l *slog.Logger) Option {
	return func(in *Instance) { in.logger = l }
}

// WithClock overrides time.Now for evaluation timestamps
func WithClock(now func() time.Time) Option {
	return func(in *Instance) { in.now = now }
}

// Instance is one beam in the scene. All methods are safe for concurrent use;
// evaluations of different instances never contend.
type Instance struct {
	mu sync.Mutex

	id   core.BeamID
	name string

	beam  core.Beam
	cfg   core.OcclusionConfig
	state *occlusion.State

	detector *occlusion.Detector
	renderer core.Renderer
	sink     diagnostics.Sink
	logger   *slog.Logger
	now      func() time.Time

	// active is read without the lock so log context providers can count active
	// beams while an instance is logging
	active atomic.Bool
}

// New creates an inactive instance. cfg is sanitized; a nil renderer discards
// clipping updates.
func New(name string, b core.Beam, cfg core.OcclusionConfig, detector *occlusion.Detector, renderer core.Renderer, opts ...Option) *Instance {
	in := &Instance{
		id:       uuid.New(),
		name:     name,
		beam:     b,
		cfg:      cfg.Sanitize(),
		state:    occlusion.NewState(),
		detector: detector,
		renderer: renderer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.renderer == nil {
		in.renderer = discard{}
	}
	if in.logger == nil {
		in.logger = slog.Default()
	}
	in.logger = in.logger.With("beam", name)
	return in
}

func (in *Instance) ID() core.BeamID { return in.id }
func (in *Instance) Name() string    { return in.name }

// Active reports whether the instance takes part in scheduling
func (in *Instance) Active() bool {
	return in.active.Load()
}

// Activate starts a fresh occlusion state. Calling it on an active instance is a no-op.
func (in *Instance) Activate() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active.Load() {
		return
	}
	in.state = occlusion.NewState()
	in.active.Store(true)
	in.logger.Debug("beam activated")
}

// Deactivate discards the occlusion state and turns clipping off on the renderer and
// in diagnostics
func (in *Instance) Deactivate() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.active.Load() {
		return
	}
	in.state.Reset()
	in.renderer.ClearClippingPlane(in.id)
	in.clearDiagnostics()
	in.active.Store(false)
	in.logger.Debug("beam deactivated")
}

// Config returns the sanitized tunables
func (in *Instance) Config() core.OcclusionConfig {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cfg
}

// SetConfig replaces the tunables, clamping out of range values
func (in *Instance) SetConfig(cfg core.OcclusionConfig) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cfg = cfg.Sanitize()
}

func (in *Instance) Beam() core.Beam {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.beam
}

// SetBeam replaces the beam geometry, keeping the current range multiplier
func (in *Instance) SetBeam(b core.Beam) {
	in.mu.Lock()
	defer in.mu.Unlock()
	b.RangeMultiplier = in.beam.RangeMultiplier
	in.beam = b
}

// SetRangeMultiplier extends the query distance past the visible range.
// Values below 1 are clamped to 1.
func (in *Instance) SetRangeMultiplier(m float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.beam.RangeMultiplier = max(m, 1)
}

// State returns a copy of the occlusion state
func (in *Instance) State() occlusion.State {
	in.mu.Lock()
	defer in.mu.Unlock()
	s := *in.state
	if s.CurrentPlane != nil {
		p := *s.CurrentPlane
		s.CurrentPlane = &p
	}
	return s
}

// Due advances the throttle by one tick and reports whether the instance must be
// evaluated now
func (in *Instance) Due() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.Due(in.cfg.UpdateInterval)
}

// Evaluate runs the detector, updates the clipping plane on the renderer and emits a
// diagnostics record. It returns false without querying when the instance is inactive.
func (in *Instance) Evaluate(ctx context.Context, tick int64) (core.Evaluation, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.active.Load() {
		return core.Evaluation{}, false
	}

	start := in.now()
	out := in.detector.Evaluate(ctx, in.beam, in.cfg, in.state)

	ev := core.Evaluation{
		BeamID:   in.id,
		BeamName: in.name,
		Tick:     tick,
		Time:     start,
		Rays:     out.Rays,
		Aborted:  out.Aborted,
	}

	if out.Occluded {
		world := clipping.BuildPlane(out.Hit, in.beam, in.cfg.PlaneAlignment, in.cfg.PlaneOffset)
		in.state.SetPlane(world)

		local := clipping.ToBeamSpace(world, in.beam)
		in.renderer.SetClippingPlane(in.id, local)

		ev.Occluded = true
		ev.Occluder = out.Hit.Occluder
		ev.HitPoint = out.Hit.Point
		ev.Distance = out.Hit.Distance
		ev.Plane = &local
		ev.PlaneDistance, _ = clipping.AxisDistance(world, in.beam)
	} else {
		in.state.ClearPlane()
		in.renderer.ClearClippingPlane(in.id)
	}

	ev.Duration = in.now().Sub(start)

	if in.sink != nil {
		in.sink.Record(ev)
	}
	return ev, true
}

// ForceOff drops any live plane without querying the scene. Diagnostics see the beam
// as unoccluded but no evaluation is recorded.
func (in *Instance) ForceOff() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state.ClearPlane()
	in.renderer.ClearClippingPlane(in.id)
	in.clearDiagnostics()
}

// clearDiagnostics tells the sink the beam no longer clips. Caller holds in.mu.
func (in *Instance) clearDiagnostics() {
	if c, ok := in.sink.(diagnostics.Clearer); ok {
		c.Clear(in.id)
	}
}

type discard struct{}

func (discard) SetClippingPlane(core.BeamID, core.Plane) {}
func (discard) ClearClippingPlane(core.BeamID)           {}
