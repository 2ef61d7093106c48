package store

import (
	"encoding/json"
	"errors"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
)

// OutcomeOf summarizes a finished pipeline run. A failed run keeps the partial coverage and
// attempts the pipeline reached.
func OutcomeOf(rep report.Report, err error) Outcome {
	if err == nil {
		meta := rep.Meta()
		o := Outcome{Status: StatusSucceeded, Coverage: meta.Coverage, Attempts: meta.Attempts}
		if body, merr := json.Marshal(rep); merr == nil {
			o.Report = body
		}
		return o
	}

	o := Outcome{Status: StatusFailed, ErrorCode: CauseCode(err), Error: err.Error()}
	if apperr.IsCode(err, apperr.CodeCancelled) {
		o.Status = StatusCancelled
	}
	var failed *orchestrator.FailedError
	if errors.As(err, &failed) {
		o.Coverage, o.Attempts = failed.Partial.Coverage, failed.Partial.Attempts
	}
	return o
}

// CauseCode names the most specific code in err: a pipeline failure reports its stage cause.
func CauseCode(err error) string {
	var failed *orchestrator.FailedError
	if errors.As(err, &failed) {
		if cause := errors.Unwrap(failed.Unwrap()); cause != nil {
			return apperr.CodeOf(cause).String()
		}
	}
	return apperr.CodeOf(err).String()
}
