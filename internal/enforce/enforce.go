// Package enforce applies the hard temporal-resolution rules to an accepted interval sequence.
package enforce

import (
	"log/slog"
	"math"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// DefaultMaxHighActivity is the longest a high-activity interval may last, in seconds.
const DefaultMaxHighActivity = 4.0

// orderTolerance absorbs float noise from split arithmetic when checking adjacency.
const orderTolerance = 1e-9

// Result is the enforced sequence plus a summary of what changed.
type Result struct {
	Intervals []model.VisualInterval
	Split     int // source intervals that were split
	Added     int // extra intervals produced by splitting
	Borders   int // adjacent pairs kept distinct because their proximity differs
}

// Enforcer splits over-long high-activity intervals and guarantees that intervals of
// differing proximity are never collapsed.
type Enforcer struct {
	maxHigh float64
}

// New creates an enforcer; a non-positive maxHigh falls back to DefaultMaxHighActivity.
func New(maxHigh float64) *Enforcer {
	if maxHigh <= 0 || math.IsNaN(maxHigh) {
		maxHigh = DefaultMaxHighActivity
	}
	return &Enforcer{maxHigh: maxHigh}
}

// MaxHighActivity returns the configured limit.
func (e *Enforcer) MaxHighActivity() float64 { return e.maxHigh }

// Enforce returns a new, time-ordered sequence satisfying the duration rule. The input is not modified.
// It fails with INTERVAL_ORDER if the result is not strictly increasing and non-overlapping.
func (e *Enforcer) Enforce(intervals []model.VisualInterval) (Result, error) {
	var res Result
	out := make([]model.VisualInterval, 0, len(intervals))
	for _, iv := range intervals {
		pieces := e.Split(iv)
		if len(pieces) > 1 {
			res.Split++
			res.Added += len(pieces) - 1
			slog.Debug("split high-activity interval",
				"span", iv.Span().String(), "pieces", len(pieces), "max", e.maxHigh)
		}
		out = append(out, pieces...)
	}

	out = model.SortIntervals(out)
	if err := CheckOrder(out); err != nil {
		return Result{}, err
	}
	for i := 1; i < len(out); i++ {
		if !Mergeable(out[i-1], out[i]) {
			res.Borders++
		}
	}
	res.Intervals = out
	return res, nil
}

// Split divides a high-activity interval longer than the limit into the minimum number of
// equal sub-intervals, each no longer than the limit. Other intervals are returned as a single copy.
// All non-time fields are duplicated into every piece, and the last piece ends exactly at the original end.
func (e *Enforcer) Split(iv model.VisualInterval) []model.VisualInterval {
	d := iv.Duration()
	if iv.ActivityLevel != model.ActivityHigh || d <= e.maxHigh {
		return []model.VisualInterval{iv.Clone()}
	}

	n := int(math.Ceil(d / e.maxHigh))
	for {
		if pieces, ok := e.splitInto(iv, n); ok {
			return pieces
		}
		n++
	}
}

// splitInto cuts iv into n near-equal pieces. Boundaries are nudged down so no piece exceeds
// the limit after rounding; it reports false when the final piece still would.
func (e *Enforcer) splitInto(iv model.VisualInterval, n int) ([]model.VisualInterval, bool) {
	step := iv.Duration() / float64(n)
	pieces := make([]model.VisualInterval, n)
	start := iv.StartTime
	for i := 0; i < n-1; i++ {
		end := iv.StartTime + step*float64(i+1)
		for end-start > e.maxHigh {
			end = math.Nextafter(end, start)
		}
		pieces[i] = iv.WithSpan(start, end)
		start = end
	}
	if iv.EndTime-start > e.maxHigh {
		return nil, false
	}
	pieces[n-1] = iv.WithSpan(start, iv.EndTime)
	return pieces, true
}

// Mergeable reports whether two time-adjacent intervals could ever be collapsed into one.
// Any difference in proximity forbids it; proximity trend is not considered.
func Mergeable(a, b model.VisualInterval) bool {
	return a.Proximity == b.Proximity
}

// CheckOrder verifies that intervals are sorted with strictly increasing start times and no overlap.
func CheckOrder(intervals []model.VisualInterval) error {
	for i, iv := range intervals {
		if !(iv.EndTime > iv.StartTime) {
			return apperr.Newf(apperr.CodeIntervalOrder, "interval %d %s is empty or inverted", i, iv.Span())
		}
		if i == 0 {
			continue
		}
		prev := intervals[i-1]
		if iv.StartTime <= prev.StartTime {
			return apperr.Newf(apperr.CodeIntervalOrder,
				"interval %d %s does not start after interval %d %s", i, iv.Span(), i-1, prev.Span())
		}
		if iv.StartTime < prev.EndTime-orderTolerance {
			return apperr.Newf(apperr.CodeIntervalOrder,
				"interval %d %s overlaps interval %d %s", i, iv.Span(), i-1, prev.Span())
		}
	}
	return nil
}
