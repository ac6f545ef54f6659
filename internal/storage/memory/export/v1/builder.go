package v1

import (
	"sort"
	"time"

	"github.com/vlbeam/occlusion/pkg/core"
)

// RunData contains all the data needed to build an export
type RunData struct {
	StartedAt time.Time
	EndedAt   time.Time
	Beams     map[core.BeamID]*BeamRecord
}

// BeamRecord groups a beam with all its evaluations
type BeamRecord struct {
	ID          core.BeamID
	Name        string
	Evaluations []core.Evaluation
}

// Build creates an Export from the run data. Beams are ordered by name, then ID.
func Build(data *RunData) Export {
	export := Export{
		Version:   FormatVersion,
		StartedAt: data.StartedAt,
		EndedAt:   data.EndedAt,
		Beams:     make([]Beam, 0, len(data.Beams)),
	}

	for _, record := range data.Beams {
		beam := Beam{
			ID:            record.ID.String(),
			Name:          record.Name,
			OccluderTicks: make(map[string]int),
			Records:       make([][]any, 0, len(record.Evaluations)),
		}

		for _, ev := range record.Evaluations {
			beam.Evaluations++
			beam.RaysCast += ev.Rays
			if ev.Aborted {
				beam.Aborted++
			}
			if ev.Occluded {
				beam.Occluded++
				beam.OccluderTicks[string(ev.Occluder)]++
			}
			export.LastTick = max(export.LastTick, ev.Tick)

			beam.Records = append(beam.Records, []any{
				ev.Tick,
				ev.Occluded,
				string(ev.Occluder),
				ev.Distance,
				ev.PlaneDistance,
				ev.Rays,
				ev.Aborted,
			})
		}

		export.Beams = append(export.Beams, beam)
	}

	sort.Slice(export.Beams, func(i, j int) bool {
		if export.Beams[i].Name != export.Beams[j].Name {
			return export.Beams[i].Name < export.Beams[j].Name
		}
		return export.Beams[i].ID < export.Beams[j].ID
	})

	return export
}
