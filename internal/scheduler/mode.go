package scheduler

import (
	"fmt"
	"strings"
)

// Mode selects how instances are driven
type Mode int

const (
	// ModeActive throttles each instance by its update interval
	ModeActive Mode = iota
	// ModePreview ignores intervals and applies the preview policy instead
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "active"
}

// ParseMode accepts "active" or "preview"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "":
		return ModeActive, nil
	case "preview", "editor":
		return ModePreview, nil
	default:
		return ModeActive, fmt.Errorf("unknown scheduler mode: %q", s)
	}
}

// PreviewPolicy is the scheduler-wide behavior in preview mode
type PreviewPolicy int

const (
	// PreviewEveryTick evaluates every active instance on every tick
	PreviewEveryTick PreviewPolicy = iota
	// PreviewForceOff never evaluates and keeps every beam unoccluded
	PreviewForceOff
)

func (p PreviewPolicy) String() string {
	if p == PreviewForceOff {
		return "forceOff"
	}
	return "everyTick"
}

// ParsePreviewPolicy accepts "everyTick" or "forceOff"
func ParsePreviewPolicy(s string) (PreviewPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "everytick", "":
		return PreviewEveryTick, nil
	case "forceoff", "off":
		return PreviewForceOff, nil
	default:
		return PreviewEveryTick, fmt.Errorf("unknown preview policy: %q", s)
	}
}
