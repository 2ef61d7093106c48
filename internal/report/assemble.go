package report

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	"github.com/GriffinCanCode/olfactory-vision/internal/enforce"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Input carries everything a report is built from.
type Input struct {
	ID            string // report id; generated when empty
	Source        string
	TotalDuration float64
	SamplingFPS   float64
	FrameCount    int
	Models        Models
	Attempts      int
	Enforcement   Enforcement
	Intervals     []model.VisualInterval
	Assessments   []model.OlfactoryAssessment
	Frames        []FrameSample // optional; produces the frame log
}

// Assembler joins intervals with their assessments into a Report.
type Assembler struct {
	Threshold float64
	Now       func() time.Time
	NewID     func() string
}

// NewAssembler returns an assembler enforcing threshold at emission.
func NewAssembler(threshold float64) *Assembler {
	if threshold <= 0 {
		threshold = coverage.DefaultThreshold
	}
	return &Assembler{
		Threshold: threshold,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
	}
}

// Assemble builds the report. Count mismatch fails with ASSEMBLY, ordering with
// INTERVAL_ORDER and insufficient coverage with a *coverage.Error.
func (a *Assembler) Assemble(in Input) (Report, error) {
	if len(in.Intervals) != len(in.Assessments) {
		return Report{}, apperr.Newf(apperr.CodeAssembly, "%d intervals but %d assessments", len(in.Intervals), len(in.Assessments)).
			WithMetadata("intervals", strconv.Itoa(len(in.Intervals))).
			WithMetadata("assessments", strconv.Itoa(len(in.Assessments)))
	}
	if len(in.Intervals) == 0 {
		return Report{}, apperr.New(apperr.CodeAssembly, "empty timeline")
	}
	if err := enforce.CheckOrder(in.Intervals); err != nil {
		return Report{}, err
	}

	ratio := coverage.Compute(in.Intervals, in.TotalDuration)
	if !coverage.Sufficient(ratio, a.Threshold) {
		return Report{}, coverage.NewError(ratio, model.SortIntervals(in.Intervals), in.Attempts, a.Threshold, nil)
	}

	timeline := make([]TimelineEntry, len(in.Intervals))
	for i, iv := range in.Intervals {
		timeline[i] = TimelineEntry{Index: i, VisualInterval: iv.Clone(), Scent: in.Assessments[i].Scent()}
	}

	id := in.ID
	if id == "" {
		id = a.NewID()
	}
	doc := Document{
		Meta: Meta{
			ReportID:      id,
			Source:        in.Source,
			TotalDuration: in.TotalDuration,
			SamplingFPS:   in.SamplingFPS,
			FrameCount:    in.FrameCount,
			GeneratedAt:   a.Now(),
			Models:        in.Models,
			Attempts:      in.Attempts,
			Coverage:      ratio,
			Enforcement:   in.Enforcement,
		},
		VisualTimeline: timeline,
	}
	if len(in.Frames) > 0 {
		doc.FrameLog = BuildFrameLog(in.Frames, timeline)
	}
	return Report{doc: doc}, nil
}
