package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/store"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Analyze runs one video, writes the report to output when it is non-empty and records the
// run in history. An empty runID gets a fresh one.
func (a *App) Analyze(ctx context.Context, runID, path string, fps float64, output string) (report.Report, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	log := trace.Logger(trace.WithRunID(ctx, runID))
	if a.History != nil {
		if err := a.History.Start(ctx, runID, path); err != nil {
			log.Warn("run history start failed", "error", err)
		}
	}

	rep, err := a.Manager.AnalyzeFile(ctx, runID, path, fps)
	if err == nil && output != "" {
		err = rep.WriteFile(output)
	}

	if a.History != nil {
		if herr := a.History.Finish(context.WithoutCancel(ctx), runID, store.OutcomeOf(rep, err)); herr != nil {
			log.Warn("run history finish failed", "error", herr)
		}
	}
	if err != nil {
		return report.Report{}, err
	}
	return rep, nil
}
