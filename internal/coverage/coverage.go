// Package coverage measures how much of a video's duration a set of intervals accounts for.
package coverage

import (
	"slices"

	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// DefaultThreshold is the minimum acceptable coverage ratio.
const DefaultThreshold = 0.95

// Merge sorts spans by start and merges overlapping or touching ones.
// Empty and inverted spans are dropped.
func Merge(spans []model.Span) []model.Span {
	sorted := make([]model.Span, 0, len(spans))
	for _, s := range spans {
		if s.End > s.Start {
			sorted = append(sorted, s)
		}
	}
	slices.SortFunc(sorted, func(a, b model.Span) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		case a.End < b.End:
			return -1
		case a.End > b.End:
			return 1
		}
		return 0
	})

	merged := make([]model.Span, 0, len(sorted))
	for _, s := range sorted {
		n := len(merged)
		if n > 0 && s.Start <= merged[n-1].End {
			merged[n-1].End = max(merged[n-1].End, s.End)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Compute returns the fraction of [0, total) covered by the union of intervals, clamped to [0,1].
// Overlap is treated as a modeling artifact and removed before summing. Compute never fails;
// a non-positive total yields 0.
func Compute(intervals []model.VisualInterval, total float64) float64 {
	if total <= 0 {
		return 0
	}
	var covered float64
	for _, s := range Merge(spansOf(intervals)) {
		covered += s.Duration()
	}
	return clamp01(covered / total)
}

// Gaps returns the uncovered sub-ranges of [0, total) in time order.
// Gaps shorter than minGap seconds are omitted.
func Gaps(intervals []model.VisualInterval, total, minGap float64) []model.Span {
	if total <= 0 {
		return nil
	}
	var gaps []model.Span
	cursor := 0.0
	for _, s := range Merge(spansOf(intervals)) {
		if s.Start >= total {
			break
		}
		if s.Start-cursor > minGap {
			gaps = append(gaps, model.Span{Start: cursor, End: s.Start})
		}
		cursor = max(cursor, s.End)
	}
	if total-cursor > minGap {
		gaps = append(gaps, model.Span{Start: cursor, End: total})
	}
	return gaps
}

// Sufficient reports whether ratio meets threshold.
func Sufficient(ratio, threshold float64) bool {
	return ratio >= threshold
}

func spansOf(intervals []model.VisualInterval) []model.Span {
	spans := make([]model.Span, len(intervals))
	for i, iv := range intervals {
		spans[i] = iv.Span()
	}
	return spans
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
