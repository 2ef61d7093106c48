package coverage

import (
	"fmt"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Error reports that no candidate reached the coverage threshold.
// It unwraps to a COVERAGE AppError whose cause is the last attempt's failure, if any. When no
// attempt produced a candidate at all, the outer code is that failure's code instead
// (TRANSIENT for unclassified failures), since coverage was never measured.
type Error struct {
	Best      float64                // best ratio seen across all parsed candidates
	Last      []model.VisualInterval // last parsed candidate, nil if none parsed
	Attempts  int
	Threshold float64
	app       *apperr.AppError
}

// NewError builds a coverage failure. cause may be nil.
func NewError(best float64, last []model.VisualInterval, attempts int, threshold float64, cause error) *Error {
	code := apperr.CodeCoverage
	msg := fmt.Sprintf("coverage %.3f below threshold %.2f after %d attempt(s)", best, threshold, attempts)
	if last == nil && cause != nil {
		code = apperr.CodeOf(cause)
		if code == apperr.CodeUnknown {
			code = apperr.CodeTransient
		}
		msg = fmt.Sprintf("no usable candidate after %d attempt(s)", attempts)
	}
	return &Error{
		Best:      best,
		Last:      last,
		Attempts:  attempts,
		Threshold: threshold,
		app: apperr.Wrap(cause, code, msg).
			WithMetadata("best", fmt.Sprintf("%.4f", best)).
			WithMetadata("attempts", fmt.Sprint(attempts)),
	}
}

func (e *Error) Error() string { return e.app.Error() }

func (e *Error) Unwrap() error { return e.app }
