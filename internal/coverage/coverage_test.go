package coverage

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

func iv(start, end float64) model.VisualInterval {
	return model.VisualInterval{
		StartTime:      start,
		EndTime:        end,
		Scene:          "s",
		Proximity:      model.ProximityMid,
		ProximityTrend: model.TrendStable,
		ActivityLevel:  model.ActivityLow,
	}
}

func TestComputeFullCoverage(t *testing.T) {
	got := Compute([]model.VisualInterval{iv(0, 5), iv(5, 10)}, 10)
	assert.Equal(t, 1.0, got)
}

func TestComputeMergesOverlap(t *testing.T) {
	got := Compute([]model.VisualInterval{iv(0, 6), iv(4, 8), iv(4, 8), iv(1, 2)}, 10)
	assert.InDelta(t, 0.8, got, 1e-12)
}

func TestComputeClampsAndEdges(t *testing.T) {
	assert.Equal(t, 1.0, Compute([]model.VisualInterval{iv(0, 12)}, 10))
	assert.Equal(t, 0.0, Compute(nil, 10))
	assert.Equal(t, 0.0, Compute([]model.VisualInterval{iv(0, 5)}, 0))
	assert.Equal(t, 0.0, Compute([]model.VisualInterval{iv(0, 5)}, -3))
}

func TestComputeOrderInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.IntN(12)
		intervals := make([]model.VisualInterval, 0, n+2)
		for i := 0; i < n; i++ {
			start := r.Float64() * 20
			intervals = append(intervals, iv(start, start+0.1+r.Float64()*6))
		}
		// Exact duplicates must not change the result either.
		intervals = append(intervals, intervals[0], intervals[n-1])

		want := Compute(intervals, 20)
		shuffled := append([]model.VisualInterval(nil), intervals...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		assert.Equal(t, want, Compute(shuffled, 20), "trial %d", trial)
		assert.Equal(t, want, Compute(intervals[:n], 20), "duplicates changed result in trial %d", trial)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]model.Span{{Start: 5, End: 6}, {Start: 0, End: 2}, {Start: 2, End: 3}, {Start: 4, End: 4}, {Start: 1, End: 1.5}})
	assert.Equal(t, []model.Span{{Start: 0, End: 3}, {Start: 5, End: 6}}, got)
}

func TestGaps(t *testing.T) {
	intervals := []model.VisualInterval{iv(1, 3), iv(2, 4), iv(6, 9)}

	got := Gaps(intervals, 10, 0)
	assert.Equal(t, []model.Span{{Start: 0, End: 1}, {Start: 4, End: 6}, {Start: 9, End: 10}}, got)

	// Sub-threshold slivers are not worth a corrective directive.
	got = Gaps(intervals, 10, 1.5)
	assert.Equal(t, []model.Span{{Start: 4, End: 6}}, got)

	assert.Empty(t, Gaps([]model.VisualInterval{iv(0, 10)}, 10, 0))
	assert.Equal(t, []model.Span{{Start: 0, End: 10}}, Gaps(nil, 10, 0))
}

func TestSufficient(t *testing.T) {
	assert.True(t, Sufficient(0.95, DefaultThreshold))
	assert.True(t, Sufficient(1, DefaultThreshold))
	assert.False(t, Sufficient(0.9499, DefaultThreshold))
}
