package diagnostics

import (
	"context"
	"log/slog"

	"github.com/vlbeam/occlusion/pkg/core"
)

// LogSink writes a debug line whenever a beam's occlusion state changes
type LogSink struct {
	logger  *slog.Logger
	tracker *Tracker
}

// NewLogSink logs transitions using the given tracker as the previous state.
// The tracker is updated by the sink itself.
func NewLogSink(logger *slog.Logger, tracker *Tracker) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &LogSink{logger: logger, tracker: tracker}
}

func (l *LogSink) Record(ev core.Evaluation) {
	prev, seen := l.tracker.Get(ev.BeamID)
	l.tracker.Record(ev)

	changed := !seen || prev.Occluded != ev.Occluded || prev.LastOccluder != ev.Occluder
	if !changed {
		return
	}

	attrs := []slog.Attr{
		slog.String("beam", ev.BeamName),
		slog.String("beamID", ev.BeamID.String()),
		slog.Int64("tick", ev.Tick),
		slog.Bool("occluded", ev.Occluded),
		slog.Int("rays", ev.Rays),
	}
	if ev.Occluded {
		attrs = append(attrs,
			slog.String("occluder", string(ev.Occluder)),
			slog.Float64("planeDistance", ev.PlaneDistance),
		)
	}
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "occlusion changed", attrs...)
}

// Clear updates the tracker and logs when a live occlusion was dropped
func (l *LogSink) Clear(id core.BeamID) {
	prev, _ := l.tracker.Get(id)
	if !l.tracker.clear(id) {
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "occlusion cleared",
		slog.String("beam", prev.Name),
		slog.String("beamID", id.String()),
		slog.String("occluder", string(prev.LastOccluder)),
	)
}
