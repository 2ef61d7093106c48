package orchestrator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	"github.com/GriffinCanCode/olfactory-vision/internal/enforce"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/media"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/olfactory"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/visual"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Run executes every stage in order. Any stage failure ends the run with a *FailedError
// carrying the partial state; cancellation ends it with a CANCELLED error and nothing else.
func (m *Manager) Run(ctx context.Context, in Input) (report.Report, error) {
	if in.RunID == "" {
		in.RunID = uuid.NewString()
	}
	ctx, _ = trace.EnsureContext(trace.WithRunID(ctx, in.RunID))
	ctx, span := trace.StartSpan(ctx, "pipeline")
	defer span.End()
	span.SetAttr("source", in.Source)
	log := trace.Logger(ctx)

	m.observer.RunStarted()
	defer m.observer.RunFinished()

	var partial Partial
	fail := func(stage string, err error) (report.Report, error) {
		m.emit(in.RunID, stage, progress.StateFailed, err)
		switch {
		case apperr.IsCode(err, apperr.CodeCancelled):
			log.Warn("pipeline cancelled", "stage", stage)
			return report.Report{}, err
		case ctx.Err() != nil:
			log.Warn("pipeline cancelled", "stage", stage)
			return report.Report{}, apperr.Wrap(ctx.Err(), apperr.CodeCancelled, "pipeline cancelled")
		}
		log.Error("pipeline failed", "stage", stage, "error", err)
		return report.Report{}, newFailed(stage, partial, err)
	}

	// Stage 1
	var accepted visual.Result
	err := m.stage(ctx, in.RunID, StageVisual, func(ctx context.Context) error {
		vo := visual.New(m.visualInfer, m.visualCfg).WithHook(func(t visual.Transition) {
			e := progress.Event{RunID: in.RunID, Stage: StageVisual, State: t.To.String(), Attempt: t.Attempt, Coverage: t.Coverage}
			if t.Err != nil {
				e.Message = t.Err.Error()
			}
			m.events.Add(e)
		})
		var err error
		accepted, err = vo.Run(ctx, in.Frames, in.Duration)
		return err
	})
	if err != nil {
		var covErr *coverage.Error
		if errors.As(err, &covErr) {
			partial.Intervals, partial.Coverage, partial.Attempts = covErr.Last, covErr.Best, covErr.Attempts
			m.observer.Attempts(StageVisual, covErr.Attempts)
		}
		return fail(StageVisual, err)
	}
	partial.Intervals, partial.Coverage, partial.Attempts = accepted.Intervals, accepted.Coverage, accepted.Attempts
	m.observer.Attempts(StageVisual, accepted.Attempts)
	m.observer.Coverage(accepted.Coverage)

	// Constraint enforcement
	var enforced enforce.Result
	err = m.stage(ctx, in.RunID, StageEnforce, func(context.Context) error {
		var err error
		enforced, err = m.enforcer.Enforce(accepted.Intervals)
		return err
	})
	if err != nil {
		return fail(StageEnforce, err)
	}
	partial.Intervals = enforced.Intervals
	m.observer.Splits(enforced.Split)
	if enforced.Split > 0 {
		log.Info("high-activity intervals split", "split", enforced.Split, "added", enforced.Added)
	}

	// Stage 2
	var scents olfactory.Result
	err = m.stage(ctx, in.RunID, StageOlfactory, func(ctx context.Context) error {
		var err error
		scents, err = m.olfactory.Run(ctx, enforced.Intervals)
		return err
	})
	if err != nil {
		return fail(StageOlfactory, err)
	}
	partial.Profiles = scents.Profiles
	m.observer.Attempts(StageOlfactory, scents.Attempts)

	err = m.stage(ctx, in.RunID, StageIntensity, func(context.Context) error {
		assessments := make([]model.OlfactoryAssessment, len(enforced.Intervals))
		for i, iv := range enforced.Intervals {
			a, err := m.engine.Assess(iv, scents.Profiles[i])
			if err != nil {
				return apperr.Wrapf(err, apperr.CodeOf(err), "interval %d", i)
			}
			assessments[i] = a
			m.observer.Intensity(string(a.IntensityLabel()))
		}
		partial.Assessments = assessments
		return nil
	})
	if err != nil {
		return fail(StageIntensity, err)
	}

	var rep report.Report
	err = m.stage(ctx, in.RunID, StageAssemble, func(context.Context) error {
		var err error
		rep, err = m.assembler.Assemble(m.reportInput(in, accepted, enforced, partial.Assessments))
		return err
	})
	if err != nil {
		return fail(StageAssemble, err)
	}

	m.emit(in.RunID, StageAssemble, progress.StateDone, nil)
	span.SetAttr("intervals", len(enforced.Intervals))
	log.Info("pipeline complete", "intervals", len(enforced.Intervals), "coverage", accepted.Coverage,
		"visual_attempts", accepted.Attempts, "olfactory_attempts", scents.Attempts)
	return rep, nil
}

func (m *Manager) reportInput(in Input, accepted visual.Result, enforced enforce.Result, assessments []model.OlfactoryAssessment) report.Input {
	ri := report.Input{
		ID:            in.RunID,
		Source:        in.Source,
		TotalDuration: in.Duration,
		SamplingFPS:   in.FPS,
		FrameCount:    len(in.Frames),
		Models:        m.cfg.Models,
		Attempts:      accepted.Attempts,
		Enforcement: report.Enforcement{
			MaxHighActivity: m.enforcer.MaxHighActivity(),
			Split:           enforced.Split,
			Added:           enforced.Added,
		},
		Intervals:   enforced.Intervals,
		Assessments: assessments,
	}
	if m.cfg.FrameLog {
		fps := media.FingerprintFrames(in.Frames, m.cfg.HashDistance)
		ri.Frames = make([]report.FrameSample, len(in.Frames))
		for i, f := range in.Frames {
			ri.Frames[i] = report.FrameSample{Index: f.Index, Timestamp: f.Timestamp, PHash: fps[i].Hash, Changed: fps[i].Changed}
		}
	}
	return ri
}
