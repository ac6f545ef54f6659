package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/vlbeam/occlusion/internal/diagnostics"
	"github.com/vlbeam/occlusion/internal/scheduler"
)

// Scheduler is the part of the scheduler the monitor reports on
type Scheduler interface {
	CurrentTick() int64
	ActiveCount() int
	Mode() scheduler.Mode
	LastPass() scheduler.PassStats
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Scheduler Scheduler
	Tracker   *diagnostics.Tracker
	Logger    *slog.Logger

	// Pending reports rows waiting in the storage queues, optional
	Pending func() int

	// StatusPath is rewritten on every interval; empty disables the file
	StatusPath string
	Interval   time.Duration
}

// BeamStatus is the per-beam part of a Status
type BeamStatus struct {
	Name           string  `json:"name"`
	Occluded       bool    `json:"occluded"`
	LastOccluder   string  `json:"lastOccluder,omitempty"`
	LastUpdateTick int64   `json:"lastUpdateTick"`
	PlaneDistance  float64 `json:"planeDistance,omitempty"`
	Evaluations    int     `json:"evaluations"`
	Aborts         int     `json:"aborts"`
}

// Status is one snapshot of the run
type Status struct {
	Time          time.Time    `json:"time"`
	Tick          int64        `json:"tick"`
	Mode          string       `json:"mode"`
	ActiveBeams   int          `json:"activeBeams"`
	LastPassMs    float64      `json:"lastPassMs"`
	LastEvaluated int          `json:"lastEvaluated"`
	PendingWrites int          `json:"pendingWrites"`
	Beams         []BeamStatus `json:"beams"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current program status. Beams are sorted by name.
func (s *Service) GetStatus() Status {
	pass := s.deps.Scheduler.LastPass()
	status := Status{
		Time:          time.Now(),
		Tick:          s.deps.Scheduler.CurrentTick(),
		Mode:          s.deps.Scheduler.Mode().String(),
		ActiveBeams:   s.deps.Scheduler.ActiveCount(),
		LastPassMs:    float64(pass.Duration.Microseconds()) / 1000,
		LastEvaluated: pass.Evaluated,
	}
	if s.deps.Pending != nil {
		status.PendingWrites = s.deps.Pending()
	}

	if s.deps.Tracker != nil {
		for _, snap := range s.deps.Tracker.Snapshots() {
			status.Beams = append(status.Beams, BeamStatus{
				Name:           snap.Name,
				Occluded:       snap.Occluded,
				LastOccluder:   string(snap.LastOccluder),
				LastUpdateTick: snap.LastUpdateTick,
				PlaneDistance:  snap.PlaneDistance,
				Evaluations:    snap.Evaluations,
				Aborts:         snap.Aborts,
			})
		}
		sort.Slice(status.Beams, func(i, j int) bool {
			return status.Beams[i].Name < status.Beams[j].Name
		})
	}
	return status
}

// WriteStatus replaces the status file with the current status
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.deps.StatusPath == "" {
		return fmt.Errorf("status path not set")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	logger := s.deps.Logger
	logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.WriteStatus(); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and writes a last status
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()

	<-done
	if err := s.WriteStatus(); err != nil {
		s.deps.Logger.Error("Error writing final status", "error", err)
	}
}
