// Package occlusion decides whether a beam is blocked by scene geometry.
//
// One center ray is cast along the beam axis. When the configured surface ratio asks
// for more than half the cross-section to be covered, up to four peripheral rays are
// cast toward the edge of the cone and the farthest valid hit becomes authoritative.
package occlusion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang/geo/r3"
	"github.com/vlbeam/occlusion/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome is the result of one evaluation
type Outcome struct {
	// Hit is the authoritative hit, meaningful only when Occluded is true
	Hit      core.Hit
	Occluded bool

	// Rays is the number of queries issued
	Rays int

	// Aborted is set when a peripheral sample failed; FailedDirection names it
	Aborted         bool
	FailedDirection core.Direction
}

// Option configures a Detector.
type Option func(*Detector)

// WithMeterProvider overrides the global OTel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(d *Detector) {
		d.meterProvider = mp
	}
}

// Detector runs occlusion evaluations against a spatial query service.
// It holds no per-beam state and may be shared by all instances.
type Detector struct {
	query  core.SpatialQuery
	logger *slog.Logger

	meterProvider metric.MeterProvider
	rays          metric.Int64Counter
	evaluations   metric.Int64Counter
}

// New creates a Detector. A nil logger falls back to slog.Default().
func New(query core.SpatialQuery, logger *slog.Logger, opts ...Option) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		query:  query,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	m := meter(d.meterProvider)

	var err error
	d.rays, err = m.Int64Counter(
		"occlusion.rays.cast",
		metric.WithDescription("Ray queries issued by the occlusion detector"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rays counter: %w", err)
	}

	d.evaluations, err = m.Int64Counter(
		"occlusion.evaluations",
		metric.WithDescription("Occlusion evaluations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evaluations counter: %w", err)
	}

	return d, nil
}

var (
	centerAttr     = metric.WithAttributes(attribute.String("ray", "center"))
	peripheralAttr = metric.WithAttributes(attribute.String("ray", "peripheral"))
)

// Evaluate runs the occlusion test for one beam. cfg must already be sanitized.
// When no valid occlusion is found the state's plane is cleared; on success the
// caller builds and stores the plane from the returned hit.
func (d *Detector) Evaluate(ctx context.Context, beam core.Beam, cfg core.OcclusionConfig, state *State) Outcome {
	var out Outcome

	if beam.Degenerate() {
		state.ClearPlane()
		d.record(ctx, "degenerate")
		return out
	}

	maxDist := beam.MaxDistance()

	best, ok := d.bestHit(ctx, beam.Origin, beam.Forward, maxDist, cfg.QueryMask, cfg.MinOccluderArea)
	out.Rays++
	d.rays.Add(ctx, 1, centerAttr)
	if !ok || !valid(best, beam, cfg) {
		state.ClearPlane()
		d.record(ctx, "clear")
		return out
	}

	if cfg.NeedsPeripheral() {
		scale := cfg.PeripheralScale()
		far := beam.Origin.Add(beam.Forward.Mul(beam.Range))

		for i := uint(0); i < core.DirectionCount; i++ {
			dir := core.Direction((state.LastDirectionRotation + i) % core.DirectionCount)
			side := beam.Direction(dir)

			start := beam.Origin.Add(side.Mul(beam.RadiusStart * scale))
			target := far.Add(side.Mul(beam.RadiusEnd * scale))
			ray := target.Sub(start)

			var hit core.Hit
			ok := false
			if ray.Norm() > 0 {
				hit, ok = d.bestHit(ctx, start, ray.Normalize(), maxDist, cfg.QueryMask, cfg.MinOccluderArea)
				out.Rays++
				d.rays.Add(ctx, 1, peripheralAttr)
			}

			if !ok || !valid(hit, beam, cfg) {
				state.LastDirectionRotation = uint(dir)
				state.ClearPlane()
				out.Aborted = true
				out.FailedDirection = dir
				d.record(ctx, "aborted")
				d.logger.Debug("peripheral sample rejected", "direction", dir.String(), "rays", out.Rays)
				return out
			}

			if hit.Distance > best.Distance {
				best = hit
			}
		}
	}

	out.Hit = best
	out.Occluded = true
	d.record(ctx, "occluded")
	return out
}

// bestHit casts one ray and returns the nearest admissible hit. Query errors are
// treated as an empty result.
func (d *Detector) bestHit(ctx context.Context, origin, dir r3.Vector, maxDist float64, mask core.LayerMask, minArea float64) (core.Hit, bool) {
	hits, err := d.query.CastRay(ctx, origin, dir, maxDist, mask)
	if err != nil {
		d.logger.Debug("ray query failed, treating as no hit", "error", err)
		return core.Hit{}, false
	}
	return nearest(hits, minArea)
}

// nearest drops triggers and undersized surfaces, then picks the closest hit
func nearest(hits []core.Hit, minArea float64) (core.Hit, bool) {
	var (
		best  core.Hit
		found bool
	)
	for _, h := range hits {
		if h.Excluded || h.Area < minArea {
			continue
		}
		if !found || h.Distance < best.Distance {
			best = h
			found = true
		}
	}
	return best, found
}

// valid reports whether the surface faces the beam closely enough to block it
func valid(h core.Hit, beam core.Beam, cfg core.OcclusionConfig) bool {
	return h.Facing(beam.Forward) >= cfg.MaxSurfaceDeviation
}

func (d *Detector) record(ctx context.Context, outcome string) {
	d.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
