package model

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Span is a half-open time range [Start, End) in seconds.
type Span struct {
	Start float64 `json:"start_s"`
	End   float64 `json:"end_s"`
}

// Duration returns End-Start.
func (s Span) Duration() float64 { return s.End - s.Start }

func (s Span) String() string { return fmt.Sprintf("[%.2fs, %.2fs)", s.Start, s.End) }

// VisualObject is one tracked object within an interval.
type VisualObject struct {
	Name        string `json:"name" validate:"required"`
	VisualState string `json:"visual_state"`
	Interaction string `json:"interaction"`
}

// Environment holds the physical conditions inferred for an interval.
type Environment struct {
	Temperature Temperature `json:"temperature,omitempty" validate:"omitempty,oneof=cold ambient warm hot"`
	Airflow     Airflow     `json:"airflow,omitempty" validate:"omitempty,oneof=still light strong"`
	Humidity    Humidity    `json:"humidity,omitempty" validate:"omitempty,oneof=dry normal humid"`
	Confinement Confinement `json:"confinement,omitempty" validate:"omitempty,oneof=enclosed semi open"`
}

// VisualInterval is one discrete observation window produced by the visual stage.
// Equality and ordering are defined by (StartTime, EndTime) only.
type VisualInterval struct {
	StartTime      float64        `json:"start_time" validate:"gte=0"`
	EndTime        float64        `json:"end_time" validate:"gtfield=StartTime"`
	Scene          string         `json:"scene" validate:"required"`
	Objects        []VisualObject `json:"objects" validate:"dive"`
	Proximity      Proximity      `json:"proximity" validate:"required,oneof=near mid far"`
	ProximityTrend Trend          `json:"proximity_trend" validate:"required,oneof=approaching receding stable"`
	FrameCoverage  float64        `json:"frame_coverage" validate:"gte=0,lte=1"`
	ActivityLevel  ActivityLevel  `json:"activity_level" validate:"required,oneof=low medium high"`
	Environment    *Environment   `json:"environment,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`
}

// NewVisualInterval validates v and returns an independent copy of it.
// Out-of-domain values fail with a VALIDATION error; nothing is coerced.
func NewVisualInterval(v VisualInterval) (VisualInterval, error) {
	if err := v.Validate(); err != nil {
		return VisualInterval{}, err
	}
	return v.Clone(), nil
}

// Validate checks every field range.
func (v VisualInterval) Validate() error {
	for _, f := range []struct {
		name string
		val  float64
	}{{"start_time", v.StartTime}, {"end_time", v.EndTime}, {"frame_coverage", v.FrameCoverage}} {
		if !finite(f.val) {
			return invalidf(f.name, "%s is not finite", f.name)
		}
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// Span returns the interval's time range.
func (v VisualInterval) Span() Span { return Span{Start: v.StartTime, End: v.EndTime} }

// Duration returns EndTime-StartTime.
func (v VisualInterval) Duration() float64 { return v.EndTime - v.StartTime }

// Clone returns a deep copy so mutations of the copy never alias the original.
func (v VisualInterval) Clone() VisualInterval {
	c := v
	c.Objects = slices.Clone(v.Objects)
	if v.Environment != nil {
		env := *v.Environment
		c.Environment = &env
	}
	return c
}

// WithSpan returns a copy of v covering [start, end).
func (v VisualInterval) WithSpan(start, end float64) VisualInterval {
	c := v.Clone()
	c.StartTime = start
	c.EndTime = end
	return c
}

// Compare orders intervals by start then end time.
func Compare(a, b VisualInterval) int {
	if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
		return c
	}
	return cmp.Compare(a.EndTime, b.EndTime)
}

// Equal reports whether a and b cover the same time range.
func Equal(a, b VisualInterval) bool { return Compare(a, b) == 0 }

// SortIntervals returns a time-ordered copy of intervals.
func SortIntervals(intervals []VisualInterval) []VisualInterval {
	out := make([]VisualInterval, len(intervals))
	for i, iv := range intervals {
		out[i] = iv.Clone()
	}
	slices.SortStableFunc(out, Compare)
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
