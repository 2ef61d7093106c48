package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	"github.com/GriffinCanCode/olfactory-vision/internal/enforce"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/intensity"
	"github.com/GriffinCanCode/olfactory-vision/internal/media"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/olfactory"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/visual"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Extractor samples a video file into frames.
type Extractor interface {
	Extract(ctx context.Context, path string, fps float64) (*media.Video, error)
}

// Observer receives pipeline measurements. *metrics.Metrics satisfies it.
type Observer interface {
	StageDone(stage string, d time.Duration, err error)
	Attempts(stage string, n int)
	Coverage(ratio float64)
	Intensity(label string)
	Splits(n int)
	RunStarted()
	RunFinished()
}

type nopObserver struct{}

func (nopObserver) StageDone(string, time.Duration, error) {}
func (nopObserver) Attempts(string, int)                   {}
func (nopObserver) Coverage(float64)                       {}
func (nopObserver) Intensity(string)                       {}
func (nopObserver) Splits(int)                             {}
func (nopObserver) RunStarted()                            {}
func (nopObserver) RunFinished()                           {}

// Config gathers the per-stage settings.
type Config struct {
	Visual          visual.Config
	Olfactory       olfactory.Config
	Intensity       intensity.Config
	MaxHighActivity float64
	Threshold       float64 // emission coverage threshold; also used by Stage 1 when its own is unset
	Models          report.Models
	FrameLog        bool
	HashDistance    int // pHash distance for frame log change detection
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		Visual:          visual.DefaultConfig(),
		Olfactory:       olfactory.DefaultConfig(),
		Intensity:       intensity.DefaultConfig(),
		MaxHighActivity: enforce.DefaultMaxHighActivity,
		Threshold:       coverage.DefaultThreshold,
		FrameLog:        true,
	}
}

// Deps are the pipeline's collaborators. Extractor, Observer and Events are optional.
type Deps struct {
	Visual    inference.Visual
	Olfactory inference.Olfactory
	Extractor Extractor
	Observer  Observer
	Events    progress.Sink
}

// Manager runs independent pipeline runs. It keeps no per-run state, so runs may execute
// concurrently.
type Manager struct {
	visualInfer inference.Visual
	visualCfg   visual.Config
	olfactory   *olfactory.Orchestrator
	enforcer    *enforce.Enforcer
	engine      *intensity.Engine
	assembler   *report.Assembler
	extractor   Extractor
	observer    Observer
	events      progress.Sink
	cfg         Config
}

// New creates a manager.
func New(deps Deps, cfg Config) (*Manager, error) {
	if deps.Visual == nil || deps.Olfactory == nil {
		return nil, apperr.New(apperr.CodeConfigInvalid, "both inference capabilities are required")
	}
	engine, err := intensity.New(cfg.Intensity)
	if err != nil {
		return nil, err
	}
	if cfg.Visual.Threshold <= 0 {
		cfg.Visual.Threshold = cfg.Threshold
	}

	m := &Manager{
		visualInfer: deps.Visual,
		visualCfg:   cfg.Visual,
		olfactory:   olfactory.New(deps.Olfactory, cfg.Olfactory),
		enforcer:    enforce.New(cfg.MaxHighActivity),
		engine:      engine,
		assembler:   report.NewAssembler(cfg.Threshold),
		extractor:   deps.Extractor,
		observer:    deps.Observer,
		events:      deps.Events,
		cfg:         cfg,
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.events == nil {
		m.events = progress.SinkFunc(func(progress.Event) {})
	}
	return m, nil
}

// Input is one video already sampled into frames.
type Input struct {
	RunID    string // generated when empty; becomes the report id
	Source   string
	Duration float64
	FPS      float64
	Frames   []model.Frame
}

// AnalyzeFile samples path at fps and runs the pipeline on the result.
func (m *Manager) AnalyzeFile(ctx context.Context, runID, path string, fps float64) (report.Report, error) {
	if m.extractor == nil {
		return report.Report{}, apperr.New(apperr.CodeConfigInvalid, "no frame extractor configured")
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, _ = trace.EnsureContext(trace.WithRunID(ctx, runID))

	var video *media.Video
	err := m.stage(ctx, runID, StageExtract, func(ctx context.Context) error {
		var err error
		video, err = m.extractor.Extract(ctx, path, fps)
		return err
	})
	if err != nil {
		m.emit(runID, StageExtract, progress.StateFailed, err)
		return report.Report{}, err
	}

	return m.Run(ctx, Input{
		RunID:    runID,
		Source:   path,
		Duration: video.Info.Duration,
		FPS:      video.FPS,
		Frames:   video.Frames,
	})
}

// stage times fn, wraps it in a span and reports start and finish.
func (m *Manager) stage(ctx context.Context, runID, name string, fn func(ctx context.Context) error) error {
	ctx, span := trace.StartSpan(ctx, name)
	defer span.End()
	m.events.Add(progress.Event{RunID: runID, Stage: name, State: stateStarted})

	start := time.Now()
	err := fn(ctx)
	m.observer.StageDone(name, time.Since(start), err)
	if err != nil {
		span.Fail(err)
		return err
	}
	m.events.Add(progress.Event{RunID: runID, Stage: name, State: stateFinished})
	return nil
}

func (m *Manager) emit(runID, stage, state string, err error) {
	e := progress.Event{RunID: runID, Stage: stage, State: state}
	if err != nil {
		e.Message = err.Error()
	}
	m.events.Add(e)
}
