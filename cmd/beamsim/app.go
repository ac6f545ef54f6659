package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vlbeam/occlusion/internal/beam"
	"github.com/vlbeam/occlusion/internal/config"
	"github.com/vlbeam/occlusion/internal/diagnostics"
	"github.com/vlbeam/occlusion/internal/logging"
	"github.com/vlbeam/occlusion/internal/monitor"
	"github.com/vlbeam/occlusion/internal/occlusion"
	"github.com/vlbeam/occlusion/internal/otel"
	"github.com/vlbeam/occlusion/internal/scene"
	"github.com/vlbeam/occlusion/internal/scheduler"
	"github.com/vlbeam/occlusion/internal/storage"
	"github.com/vlbeam/occlusion/pkg/core"
)

// TickSeconds is the simulated time between two ticks
const TickSeconds = 1.0 / 30

// Settings is everything NewApp reads from the configuration
type Settings struct {
	LogLevel  string
	LogsDir   string
	Occlusion core.OcclusionConfig
	Scheduler config.SchedulerConfig
	Scene     config.SceneConfig
	Storage   config.StorageConfig
	DB        config.DBConfig
	Influx    config.InfluxConfig
	OTel      config.OTelConfig
	Monitor   config.MonitorConfig

	// LogToConsole skips the log file
	LogToConsole bool

	// Start stamps log and export file names
	Start time.Time

	// alignmentErr is reported once logging is up
	alignmentErr error
}

// LoadSettings reads Settings from the loaded configuration
func LoadSettings() Settings {
	occ, err := config.GetOcclusionConfig()
	return Settings{
		LogLevel:     config.GetString("logLevel"),
		LogsDir:      config.GetString("logsDir"),
		Occlusion:    occ,
		Scheduler:    config.GetSchedulerConfig(),
		Scene:        config.GetSceneConfig(),
		Storage:      config.GetStorageConfig(),
		DB:           config.GetDBConfig(),
		Influx:       config.GetInfluxConfig(),
		OTel:         config.GetOTelConfig(),
		Monitor:      config.GetMonitorConfig(),
		Start:        time.Now(),
		alignmentErr: err,
	}
}

// App owns every component of one simulation run
type App struct {
	settings Settings
	logs     *logging.SlogManager
	logger   *slog.Logger
	closers  []io.Closer

	telemetry *otel.Provider
	scene     *scene.Scene
	scheduler *scheduler.Scheduler
	backend   storage.Backend
	tracker   *diagnostics.Tracker
	renderer  *beam.PlaneRecorder
	monitor   *monitor.Service
}

// StatusFileName is written to the logs directory while a run is in progress
const StatusFileName = "status.json"

// NewApp wires logging, telemetry, the scene, storage and the scheduler.
// On error everything opened so far is released.
func NewApp(ctx context.Context, s Settings) (app *App, err error) {
	if s.Start.IsZero() {
		s.Start = time.Now()
	}
	a := &App{
		settings: s,
		logs:     logging.NewSlogManager(),
		tracker:  diagnostics.NewTracker(),
		renderer: beam.NewPlaneRecorder(),
	}
	defer func() {
		if err != nil {
			_ = a.closeAll()
		}
	}()

	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	if s.alignmentErr != nil {
		a.logger.Warn("invalid occlusion.planeAlignment, using surface", "error", s.alignmentErr)
	}

	file, err := scene.LoadFile(s.Scene.File)
	if err != nil {
		return nil, err
	}
	specs, err := file.BeamSpecs(s.Occlusion)
	if err != nil {
		return nil, err
	}
	a.scene = scene.New(a.logger, file.SceneOccluders()...)

	a.backend, err = a.createStorageBackend()
	if err != nil {
		return nil, err
	}
	if err := a.backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	a.closers = append(a.closers, a.backend)

	mp := a.telemetry.MeterProvider()
	detector, err := occlusion.New(a.scene, a.logger, occlusion.WithMeterProvider(mp))
	if err != nil {
		return nil, err
	}

	mode, err := scheduler.ParseMode(s.Scheduler.Mode)
	if err != nil {
		return nil, err
	}
	preview, err := scheduler.ParsePreviewPolicy(s.Scheduler.Preview)
	if err != nil {
		return nil, err
	}
	a.scheduler, err = scheduler.New(
		scheduler.WithMode(mode),
		scheduler.WithPreviewPolicy(preview),
		scheduler.WithParallelism(s.Scheduler.Parallelism),
		scheduler.WithBarrier(a.scene),
		scheduler.WithLogger(logging.NewSchedulerLogger(a.logs.ZeroLogger())),
		scheduler.WithMeterProvider(mp),
	)
	if err != nil {
		return nil, err
	}

	sink := diagnostics.Multi{
		diagnostics.NewLogSink(a.logger, a.tracker),
		storage.NewSink(a.backend, a.logger),
	}
	for _, spec := range specs {
		in := beam.New(spec.Name, spec.Beam, spec.Config, detector, a.renderer,
			beam.WithSink(sink),
			beam.WithLogger(a.logger),
		)
		if !spec.Disabled {
			in.Activate()
		}
		if err := a.scheduler.Add(in); err != nil {
			return nil, err
		}
	}

	if s.Monitor.Interval > 0 {
		deps := monitor.Dependencies{
			Scheduler:  a.scheduler,
			Tracker:    a.tracker,
			Logger:     a.logger,
			StatusPath: filepath.Join(s.LogsDir, StatusFileName),
			Interval:   s.Monitor.Interval,
		}
		if p, ok := a.backend.(interface{ Pending() int }); ok {
			deps.Pending = p.Pending
		}
		a.monitor = monitor.NewService(deps)
	}

	a.logger.Info("Scene loaded",
		"file", s.Scene.File,
		"beams", len(specs),
		"occluders", len(file.Occluders),
		"mode", mode.String(),
		"storage", s.Storage.Type,
	)
	return a, nil
}

// setupLogging opens the log file and the OTel provider. The scheduler tick is
// added to every record once the scheduler exists.
func (a *App) setupLogging() error {
	s := a.settings
	var logFile io.Writer
	var otelFile io.Writer

	if err := os.MkdirAll(s.LogsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if !s.LogToConsole {
		f, err := os.OpenFile(logging.LogFilePath(s.LogsDir, AppName, s.Start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		logFile = f

		if s.OTel.Enabled {
			of, err := os.OpenFile(logging.LogFilePath(s.LogsDir, AppName+".otel", s.Start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open OTel log file: %w", err)
			}
			a.closers = append(a.closers, of)
			otelFile = of
		}
	}

	telemetry, err := otel.New(otel.Config{
		Enabled:      s.OTel.Enabled,
		ServiceName:  s.OTel.ServiceName,
		BatchTimeout: s.OTel.BatchTimeout,
		LogWriter:    otelFile,
		Endpoint:     s.OTel.Endpoint,
		Insecure:     s.OTel.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up OTel: %w", err)
	}
	a.telemetry = telemetry

	a.logs.Setup(logging.Options{
		File:     logFile,
		Level:    s.LogLevel,
		Provider: telemetry.LoggerProvider(),
		Context: func() []slog.Attr {
			if a.scheduler == nil {
				return nil
			}
			return a.scheduler.LogAttrs()
		},
	})
	a.logger = a.logs.Logger()
	return nil
}

// Run advances the scene and runs one scheduler pass per tick
func (a *App) Run(ctx context.Context) error {
	ticks := a.settings.Scene.Ticks
	start := time.Now()

	if a.monitor != nil {
		if err := a.monitor.Start(); err != nil {
			return err
		}
		defer a.monitor.Stop()
	}

	for i := 0; i < ticks; i++ {
		a.scene.Advance(TickSeconds)
		if err := a.scheduler.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				a.logger.Info("Run interrupted", "ticks", i)
				return nil
			}
			return err
		}
	}
	a.logger.Info("Run complete", "ticks", ticks, "duration", time.Since(start))
	a.logSummary(ctx)
	return nil
}

func (a *App) logSummary(ctx context.Context) {
	for _, in := range a.scheduler.Instances() {
		snap, ok := a.tracker.Get(in.ID())
		if !ok {
			a.logger.Info("Beam never evaluated", "beam", in.Name(), "active", in.Active())
			continue
		}
		a.logger.Info("Beam summary",
			"beam", snap.Name,
			"evaluations", snap.Evaluations,
			"aborts", snap.Aborts,
			"occluded", snap.Occluded,
			"lastOccluder", string(snap.LastOccluder),
			"lastUpdateTick", snap.LastUpdateTick,
			"planeDistance", snap.PlaneDistance,
		)
	}

	sets, clears := a.renderer.Counts()
	a.logger.Info("Renderer updates", "planesSet", sets, "planesCleared", clears)

	rm, err := a.telemetry.Collect(ctx)
	if err != nil {
		a.logger.Warn("Failed to collect metrics", "error", err)
		return
	}
	for name, value := range otel.Sums(rm) {
		a.logger.Info("Metric", "name", name, "value", value)
	}
}

// Tracker exposes the per-beam diagnostics of the run
func (a *App) Tracker() *diagnostics.Tracker {
	return a.tracker
}

// Close flushes storage, telemetry and log files
func (a *App) Close() error {
	return a.closeAll()
}

func (a *App) closeAll() error {
	var errs []error
	// storage first so its final writes are logged
	for i := len(a.closers) - 1; i >= 0; i-- {
		if _, isFile := a.closers[i].(*os.File); isFile {
			continue
		}
		errs = append(errs, a.closers[i].Close())
	}

	if exporter, ok := a.backend.(storage.Exporter); ok && a.logger != nil {
		if path := exporter.GetExportedFilePath(); path != "" {
			a.logger.Info("Diagnostics exported", "path", path)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.logs.Flush(ctx))
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}

	for _, c := range a.closers {
		if f, isFile := c.(*os.File); isFile {
			errs = append(errs, f.Close())
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
