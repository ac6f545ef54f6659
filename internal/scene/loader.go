package scene

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"github.com/vlbeam/occlusion/pkg/core"
	"gopkg.in/yaml.v3"
)

// Vec3 is a vector written as a three element YAML sequence
type Vec3 [3]float64

func (v Vec3) Vector() r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// OcclusionOverrides holds per-beam tunables. Unset fields keep the base config.
type OcclusionOverrides struct {
	QueryMask           *uint32  `yaml:"queryMask"`
	MinOccluderArea     *float64 `yaml:"minOccluderArea"`
	UpdateInterval      *int     `yaml:"updateInterval"`
	MinSurfaceRatio     *float64 `yaml:"minSurfaceRatio"`
	MaxSurfaceDeviation *float64 `yaml:"maxSurfaceDeviation"`
	PlaneAlignment      *string  `yaml:"planeAlignment"`
	PlaneOffset         *float64 `yaml:"planeOffset"`
}

// Apply merges the overrides into base and sanitizes the result
func (o *OcclusionOverrides) Apply(base core.OcclusionConfig) (core.OcclusionConfig, error) {
	cfg := base
	if o == nil {
		return cfg.Sanitize(), nil
	}
	if o.QueryMask != nil {
		cfg.QueryMask = core.LayerMask(*o.QueryMask)
	}
	if o.MinOccluderArea != nil {
		cfg.MinOccluderArea = *o.MinOccluderArea
	}
	if o.UpdateInterval != nil {
		cfg.UpdateInterval = *o.UpdateInterval
	}
	if o.MinSurfaceRatio != nil {
		cfg.MinSurfaceRatio = *o.MinSurfaceRatio
	}
	if o.MaxSurfaceDeviation != nil {
		cfg.MaxSurfaceDeviation = *o.MaxSurfaceDeviation
	}
	if o.PlaneAlignment != nil {
		a, err := core.ParsePlaneAlignment(*o.PlaneAlignment)
		if err != nil {
			return cfg, err
		}
		cfg.PlaneAlignment = a
	}
	if o.PlaneOffset != nil {
		cfg.PlaneOffset = *o.PlaneOffset
	}
	return cfg.Sanitize(), nil
}

// BeamDef is one beam entry of a scene file
type BeamDef struct {
	Name            string              `yaml:"name"`
	Origin          Vec3                `yaml:"origin"`
	Forward         Vec3                `yaml:"forward"`
	Up              Vec3                `yaml:"up"`
	RadiusStart     float64             `yaml:"radiusStart"`
	RadiusEnd       float64             `yaml:"radiusEnd"`
	Range           float64             `yaml:"range"`
	RangeMultiplier float64             `yaml:"rangeMultiplier"`
	Disabled        bool                `yaml:"disabled"`
	Occlusion       *OcclusionOverrides `yaml:"occlusion"`
}

// OccluderDef is one box entry of a scene file
type OccluderDef struct {
	ID       string `yaml:"id"`
	Min      Vec3   `yaml:"min"`
	Max      Vec3   `yaml:"max"`
	Layer    int    `yaml:"layer"`
	Trigger  bool   `yaml:"trigger"`
	Velocity Vec3   `yaml:"velocity"`
}

// File is the parsed form of a scene description
type File struct {
	Beams     []BeamDef     `yaml:"beams"`
	Occluders []OccluderDef `yaml:"occluders"`
}

// BeamSpec is a ready to instantiate beam
type BeamSpec struct {
	Name     string
	Beam     core.Beam
	Config   core.OcclusionConfig
	Disabled bool
}

// LoadFile reads and parses a YAML scene description
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scene description and checks it for structural errors
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	var errs []error

	names := make(map[string]struct{}, len(f.Beams))
	for i, b := range f.Beams {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("beam %d: missing name", i))
		} else if _, dup := names[b.Name]; dup {
			errs = append(errs, fmt.Errorf("beam %q: duplicate name", b.Name))
		}
		names[b.Name] = struct{}{}
		if b.Forward.Vector().Norm2() == 0 {
			errs = append(errs, fmt.Errorf("beam %q: forward must be non-zero", b.Name))
		}
	}

	ids := make(map[string]struct{}, len(f.Occluders))
	for i, o := range f.Occluders {
		if o.ID == "" {
			errs = append(errs, fmt.Errorf("occluder %d: missing id", i))
		} else if _, dup := ids[o.ID]; dup {
			errs = append(errs, fmt.Errorf("occluder %q: duplicate id", o.ID))
		}
		ids[o.ID] = struct{}{}
		if o.Layer < 0 || o.Layer > 31 {
			errs = append(errs, fmt.Errorf("occluder %q: layer %d out of range", o.ID, o.Layer))
		}
	}

	return errors.Join(errs...)
}

// BeamSpecs builds the beams, merging each beam's overrides into base
func (f *File) BeamSpecs(base core.OcclusionConfig) ([]BeamSpec, error) {
	specs := make([]BeamSpec, 0, len(f.Beams))
	for _, d := range f.Beams {
		cfg, err := d.Occlusion.Apply(base)
		if err != nil {
			return nil, fmt.Errorf("beam %q: %w", d.Name, err)
		}

		up := d.Up.Vector()
		if up.Norm2() == 0 {
			up = r3.Vector{Y: 1}
		}
		b := core.NewBeam(d.Origin.Vector(), d.Forward.Vector(), up, d.RadiusStart, d.RadiusEnd, d.Range)
		b.RangeMultiplier = max(d.RangeMultiplier, 1)

		specs = append(specs, BeamSpec{Name: d.Name, Beam: b, Config: cfg, Disabled: d.Disabled})
	}
	return specs, nil
}

// SceneOccluders converts the box entries
func (f *File) SceneOccluders() []Occluder {
	out := make([]Occluder, 0, len(f.Occluders))
	for _, d := range f.Occluders {
		o := NewOccluder(core.OccluderID(d.ID), d.Min.Vector(), d.Max.Vector())
		o.Layer = d.Layer
		o.Trigger = d.Trigger
		o.Velocity = d.Velocity.Vector()
		out = append(out, o)
	}
	return out
}
