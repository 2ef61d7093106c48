// Package app wires configuration into a ready pipeline and its supporting services. Both
// binaries build on it.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/GriffinCanCode/olfactory-vision/internal/config"
	"github.com/GriffinCanCode/olfactory-vision/internal/grpcclient"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference/openai"
	"github.com/GriffinCanCode/olfactory-vision/internal/intensity"
	"github.com/GriffinCanCode/olfactory-vision/internal/media"
	"github.com/GriffinCanCode/olfactory-vision/internal/metrics"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/resilience"
	"github.com/GriffinCanCode/olfactory-vision/internal/store"
)

// SetupLogging installs the default slog logger described by cfg.
func SetupLogging(cfg *config.Config, w io.Writer) {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// PipelineConfig maps configuration onto the pipeline stages.
func PipelineConfig(cfg *config.Config) orchestrator.Config {
	pc := orchestrator.DefaultConfig()
	pc.Threshold = cfg.CoverageThreshold
	pc.MaxHighActivity = cfg.MaxHighActivity
	pc.FrameLog = cfg.FrameLog
	pc.HashDistance = media.MaxHashDistance
	pc.Models = report.Models{Visual: cfg.VisualModel, Olfactory: cfg.OlfactoryModel}

	pc.Visual.RetryBudget = cfg.RetryBudget
	pc.Visual.Threshold = cfg.CoverageThreshold
	pc.Visual.RequestTimeout = cfg.RequestTimeout
	pc.Olfactory.RetryBudget = cfg.RetryBudget
	pc.Olfactory.RequestTimeout = cfg.RequestTimeout

	pc.Intensity = intensity.Config{
		Thresholds: intensity.Thresholds{Medium: cfg.MediumThreshold, High: cfg.HighThreshold},
		Modifiers: intensity.Modifiers{
			Thermodynamic: cfg.Thermodynamic,
			Hygrometric:   cfg.Hygrometric,
			Aerodynamic:   cfg.Aerodynamic,
		},
	}
	return pc
}

// App is a wired pipeline.
type App struct {
	Config  *config.Config
	Backend grpcclient.Backend
	Manager *orchestrator.Manager
	Metrics *metrics.Metrics
	Events  *progress.MemoryStore
	History *store.Store // nil when no database is configured

	remote  *grpcclient.Client
	writer  *store.EventWriter
	closers []func() error
}

// Options adjust New.
type Options struct {
	KeepFramesDir string          // overrides cfg.FramesDir
	Sinks         []progress.Sink // extra progress listeners
	NoHistory     bool
}

// New validates cfg and builds the inference backend, run history and pipeline manager.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Events:  progress.NewStore(progress.DefaultMaxEntries, progress.DefaultEventBuffer),
	}

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	sinks := append([]progress.Sink{a.Events}, opts.Sinks...)
	if cfg.DBPath != "" && !opts.NoHistory {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.History = db
		a.writer = store.NewEventWriter(db, store.DefaultBatchSize, store.DefaultFlushDelay)
		a.closers = append(a.closers, func() error { a.writer.Close(); return nil }, db.Close)
		sinks = append(sinks, a.writer)
	}

	keep := cfg.FramesDir
	if opts.KeepFramesDir != "" {
		keep = opts.KeepFramesDir
	}
	m, err := orchestrator.New(orchestrator.Deps{
		Visual:    a.Backend,
		Olfactory: a.Backend,
		Extractor: media.NewExtractor(media.Config{FFmpeg: cfg.FFmpeg, FFprobe: cfg.FFprobe, KeepDir: keep}),
		Observer:  a.Metrics,
		Events:    progress.Tee(sinks...),
	}, PipelineConfig(cfg))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Manager = m
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Backend {
	case config.BackendGRPC:
		gc := grpcclient.DefaultConfig()
		gc.Addr = cfg.InferenceAddr
		c, err := grpcclient.New(gc)
		if err != nil {
			return err
		}
		c.Breaker().WithHook(a.Metrics.BreakerHook("grpc"))
		a.remote, a.Backend = c, c
		a.closers = append(a.closers, c.Close)

		// the inference server may still be starting
		err = resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error { return c.Check(ctx) })
		if err != nil {
			slog.Warn("inference server not reachable yet", "addr", cfg.InferenceAddr, "error", err)
		}
	default:
		c, err := openai.New(openai.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			VisualModel:    cfg.VisualModel,
			OlfactoryModel: cfg.OlfactoryModel,
			Breaker:        resilience.SlowConfig(),
		})
		if err != nil {
			return err
		}
		c.Breaker().WithHook(a.Metrics.BreakerHook("openai"))
		a.Backend = c
	}
	return nil
}

// Health reports whether the inference backend can serve. The OpenAI-compatible backend has
// no probe and is always considered healthy.
func (a *App) Health(ctx context.Context) error {
	if a.remote != nil {
		return a.remote.Check(ctx)
	}
	return nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
