// Package scheduler drives beam evaluations from an external tick loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vlbeam/occlusion/internal/beam"
	"github.com/vlbeam/occlusion/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateInstance is returned when an instance ID is added twice
var ErrDuplicateInstance = errors.New("instance already scheduled")

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Barrier is invoked once at the start of every pass, before any instance is
// evaluated. Scenes use it to apply queued edits so queries never race with writes.
type Barrier interface {
	ApplyPending()
}

// PassStats summarises one Tick
type PassStats struct {
	Tick      int64
	Evaluated int
	Occluded  int
	ForcedOff int
	Duration  time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMode sets the initial mode. The default is ModeActive.
func WithMode(m Mode) Option {
	return func(s *Scheduler) { s.mode = m }
}

// WithPreviewPolicy sets how instances are treated while in ModePreview.
func WithPreviewPolicy(p PreviewPolicy) Option {
	return func(s *Scheduler) { s.preview = p }
}

// WithParallelism evaluates up to n instances concurrently. Values <= 1 keep the
// single control thread.
func WithParallelism(n int) Option {
	return func(s *Scheduler) { s.parallelism = n }
}

// WithBarrier applies pending scene edits at the start of every pass.
func WithBarrier(b Barrier) Option {
	return func(s *Scheduler) { s.barrier = b }
}

// WithLogger replaces the default slog logger.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMeterProvider overrides the global OTel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Scheduler) { s.meterProvider = mp }
}

// Scheduler decides on every tick which instances are evaluated.
type Scheduler struct {
	mu        sync.RWMutex
	instances []*beam.Instance
	ids       map[core.BeamID]struct{}

	mode        Mode
	preview     PreviewPolicy
	parallelism int
	barrier     Barrier
	logger      Logger

	tick atomic.Int64
	last atomic.Pointer[PassStats]

	// OTEL metrics
	meterProvider metric.MeterProvider
	ticks         metric.Int64Counter
	evaluations   metric.Int64Counter
	passDuration  metric.Float64Histogram
	activeGauge   metric.Int64ObservableGauge
}

// New creates a Scheduler in active mode.
// Uses the global OTel meter for metrics unless WithMeterProvider is given.
func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		ids:         make(map[core.BeamID]struct{}),
		parallelism: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	m := meter(s.meterProvider)

	var err error

	s.ticks, err = m.Int64Counter(
		"scheduler.ticks",
		metric.WithDescription("Scheduler passes run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	s.evaluations, err = m.Int64Counter(
		"scheduler.evaluations",
		metric.WithDescription("Instance evaluations started by the scheduler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evaluations counter: %w", err)
	}

	s.passDuration, err = m.Float64Histogram(
		"scheduler.pass.duration",
		metric.WithDescription("Wall time of one scheduler pass"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pass duration histogram: %w", err)
	}

	s.activeGauge, err = m.Int64ObservableGauge(
		"scheduler.instances.active",
		metric.WithDescription("Active beam instances"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active instances gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(s.activeGauge, int64(s.ActiveCount()))
			return nil
		},
		s.activeGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering active instances callback: %w", err)
	}

	return s, nil
}

// Add schedules an instance. Instances are evaluated in insertion order.
func (s *Scheduler) Add(in *beam.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[in.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, in.ID())
	}
	s.ids[in.ID()] = struct{}{}
	s.instances = append(s.instances, in)
	return nil
}

// Instances returns the scheduled instances in evaluation order
func (s *Scheduler) Instances() []*beam.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*beam.Instance, len(s.instances))
	copy(out, s.instances)
	return out
}

// ActiveCount returns the number of scheduled instances that are active
func (s *Scheduler) ActiveCount() int {
	n := 0
	for _, in := range s.Instances() {
		if in.Active() {
			n++
		}
	}
	return n
}

// Mode returns the current scheduling mode
func (s *Scheduler) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches mode; it takes effect on the next pass
func (s *Scheduler) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

func (s *Scheduler) PreviewPolicy() PreviewPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview
}

// SetPreviewPolicy takes effect on the next pass
func (s *Scheduler) SetPreviewPolicy(p PreviewPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = p
}

// CurrentTick returns the number of the last pass started, 0 before the first Tick
func (s *Scheduler) CurrentTick() int64 {
	return s.tick.Load()
}

// LastPass returns the stats of the last completed pass
func (s *Scheduler) LastPass() PassStats {
	if p := s.last.Load(); p != nil {
		return *p
	}
	return PassStats{}
}

// Tick runs one scheduling pass. Inactive instances are skipped. The context is
// checked between instances; a cancelled context stops the pass and is returned.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	tick := s.tick.Add(1)

	if s.barrier != nil {
		s.barrier.ApplyPending()
	}

	s.mu.RLock()
	mode, preview, parallelism := s.mode, s.preview, s.parallelism
	instances := make([]*beam.Instance, len(s.instances))
	copy(instances, s.instances)
	s.mu.RUnlock()

	var evaluated, occluded, forced atomic.Int64
	run := func(ctx context.Context, in *beam.Instance) {
		if !in.Active() {
			return
		}
		if mode == ModePreview && preview == PreviewForceOff {
			in.ForceOff()
			forced.Add(1)
			return
		}
		if mode == ModeActive && !in.Due() {
			return
		}
		ev, ok := in.Evaluate(ctx, tick)
		if !ok {
			return
		}
		evaluated.Add(1)
		if ev.Occluded {
			occluded.Add(1)
		}
	}

	var err error
	if parallelism <= 1 {
		for _, in := range instances {
			if err = ctx.Err(); err != nil {
				break
			}
			run(ctx, in)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)
		for _, in := range instances {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				run(gctx, in)
				return nil
			})
		}
		err = g.Wait()
	}

	stats := &PassStats{
		Tick:      tick,
		Evaluated: int(evaluated.Load()),
		Occluded:  int(occluded.Load()),
		ForcedOff: int(forced.Load()),
		Duration:  time.Since(start),
	}
	s.last.Store(stats)

	modeAttr := metric.WithAttributes(attribute.String("mode", mode.String()))
	s.ticks.Add(ctx, 1, modeAttr)
	s.evaluations.Add(ctx, int64(stats.Evaluated), modeAttr)
	s.passDuration.Record(ctx, float64(stats.Duration.Microseconds())/1000, modeAttr)

	if err != nil {
		s.logger.Debug("scheduler pass interrupted", "tick", tick, "error", err)
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	return nil
}

// LogAttrs returns the dynamic attributes injected into every log record
func (s *Scheduler) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int64("tick", s.CurrentTick()),
		slog.Int("activeBeams", s.ActiveCount()),
	}
}
