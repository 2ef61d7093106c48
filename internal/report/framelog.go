package report

import (
	"fmt"
	"slices"

	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// dominantDescriptors is how many leading descriptors a frame log entry keeps.
const dominantDescriptors = 3

// FrameSample is a sampled frame's position and fingerprint.
type FrameSample struct {
	Index     int
	Timestamp float64
	PHash     string
	Changed   bool // perceptually different from the previous frame
}

// BuildFrameLog attaches to each frame the intensity of the interval covering its timestamp.
// The final interval also claims a frame sitting exactly on its end.
func BuildFrameLog(frames []FrameSample, timeline []TimelineEntry) []FrameLogEntry {
	out := make([]FrameLogEntry, len(frames))
	for i, f := range frames {
		e := FrameLogEntry{
			Timestamp:     f.Timestamp,
			FrameID:       fmt.Sprintf("frame_%05d", f.Index),
			IntervalIndex: -1,
			Label:         model.IntensityNone,
			PHash:         f.PHash,
			Changed:       f.Changed,
		}
		if j := covering(timeline, f.Timestamp); j >= 0 {
			s := timeline[j].Scent
			e.IntervalIndex = j
			e.Intensity = s.IntensityValue
			e.Label = s.IntensityLabel
			e.Descriptors = slices.Clone(s.Descriptors[:min(len(s.Descriptors), dominantDescriptors)])
		}
		out[i] = e
	}
	return out
}

func covering(timeline []TimelineEntry, t float64) int {
	i, _ := slices.BinarySearchFunc(timeline, t, func(e TimelineEntry, t float64) int {
		switch {
		case e.EndTime <= t:
			return -1
		case e.StartTime > t:
			return 1
		}
		return 0
	})
	if i < len(timeline) && timeline[i].StartTime <= t && t < timeline[i].EndTime {
		return i
	}
	if n := len(timeline); n > 0 && t == timeline[n-1].EndTime {
		return n - 1
	}
	return -1
}
