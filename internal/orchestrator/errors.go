package orchestrator

import (
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Partial is whatever the pipeline had produced when it stopped.
type Partial struct {
	Intervals   []model.VisualInterval // last candidate, or the enforced sequence once Stage 1 passed
	Profiles    []model.ScentProfile
	Assessments []model.OlfactoryAssessment
	Coverage    float64
	Attempts    int
}

// FailedError is a terminal pipeline failure. It unwraps to a PIPELINE_FAILED AppError whose
// cause is the most specific error of the failing stage.
type FailedError struct {
	Stage   string
	Partial Partial
	app     *apperr.AppError
}

func newFailed(stage string, partial Partial, cause error) *FailedError {
	return &FailedError{
		Stage:   stage,
		Partial: partial,
		app: apperr.Wrapf(cause, apperr.CodePipelineFailed, "pipeline failed in %s stage", stage).
			WithMetadata("stage", stage).
			WithMetadata("cause", apperr.CodeOf(cause).String()),
	}
}

func (e *FailedError) Error() string { return e.app.Error() }

func (e *FailedError) Unwrap() error { return e.app }
