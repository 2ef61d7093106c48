package report

import (
	"fmt"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	"github.com/GriffinCanCode/olfactory-vision/internal/enforce"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Severity grades a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one problem found in a stored report. Index is -1 for report-wide findings.
type Finding struct {
	Severity Severity `json:"severity"`
	Index    int      `json:"index"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Index < 0 {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] interval %d: %s", f.Severity, f.Index, f.Message)
}

// CheckOptions are the limits a stored report is held to.
type CheckOptions struct {
	MaxHighActivity float64
	Threshold       float64
}

// Check re-verifies a decoded report. Over-long high-activity intervals are errors;
// over-long medium-activity intervals are warnings.
func Check(doc Document, opts CheckOptions) []Finding {
	if opts.MaxHighActivity <= 0 {
		opts.MaxHighActivity = enforce.DefaultMaxHighActivity
	}
	if opts.Threshold <= 0 {
		opts.Threshold = coverage.DefaultThreshold
	}

	var findings []Finding
	add := func(sev Severity, idx int, format string, args ...any) {
		findings = append(findings, Finding{Severity: sev, Index: idx, Message: fmt.Sprintf(format, args...)})
	}

	if len(doc.VisualTimeline) == 0 {
		add(SeverityError, -1, "visual_timeline is empty")
		return findings
	}

	intervals := make([]model.VisualInterval, len(doc.VisualTimeline))
	for i, e := range doc.VisualTimeline {
		intervals[i] = e.VisualInterval
		d := e.Duration()
		switch {
		case e.ActivityLevel == model.ActivityHigh && d > opts.MaxHighActivity:
			add(SeverityError, i, "high activity lasts %.2fs, limit %.1fs", d, opts.MaxHighActivity)
		case e.ActivityLevel == model.ActivityMedium && d > opts.MaxHighActivity:
			add(SeverityWarning, i, "medium activity lasts %.2fs", d)
		}
		if v := e.Scent.IntensityValue; v < 0 || v > 1 {
			add(SeverityError, i, "intensity %v outside [0,1]", v)
		}
	}

	if err := enforce.CheckOrder(intervals); err != nil {
		add(SeverityError, -1, "%v", err)
	}
	if ratio := coverage.Compute(intervals, doc.Meta.TotalDuration); !coverage.Sufficient(ratio, opts.Threshold) {
		add(SeverityError, -1, "coverage %.3f below %.2f", ratio, opts.Threshold)
	}
	return findings
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Curve returns the intensity of each timeline entry in order.
func Curve(doc Document) []float64 {
	out := make([]float64, len(doc.VisualTimeline))
	for i, e := range doc.VisualTimeline {
		out[i] = e.Scent.IntensityValue
	}
	return out
}
