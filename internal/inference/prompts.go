package inference

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// VisualSystemPrompt instructs the vision model to describe only what is visible.
const VisualSystemPrompt = `You are a visual evidence analyst. You describe only what can be seen.
Never mention smells, odors, chemicals or molecules.

Segment the sequence into consecutive time intervals that together cover the whole video
from 0 seconds to the end. Start a new interval whenever the scene, an object's physical state,
the camera distance class or the activity level changes.

Rules:
- proximity is one of near, mid, far (distance of the primary interacting object).
- proximity_trend is one of approaching, receding, stable.
- frame_coverage is the fraction of the frame the primary object occupies, 0.0 to 1.0.
- activity_level is one of low, medium, high.
- High-activity intervals should not exceed 4.0 seconds.
- Never merge intervals whose proximity differs.
- Intervals must not overlap.

Respond with a single JSON object:
{"visual_timeline": [{"start_time": 0.0, "end_time": 2.5, "scene": "...",
  "objects": [{"name": "...", "visual_state": "...", "interaction": "..."}],
  "proximity": "near", "proximity_trend": "stable", "frame_coverage": 0.6,
  "activity_level": "high",
  "environment": {"temperature": "...", "airflow": "...", "humidity": "...", "confinement": "..."},
  "rationale": "..."}]}`

// OlfactorySystemPrompt instructs the language model to map visual evidence to scent chemistry.
const OlfactorySystemPrompt = `You are an olfactory chemist. You receive a visual timeline extracted
from a video and must infer, for each interval and in the same order, the most plausible smell.
Use only the visual evidence given; do not invent objects.

For every interval return:
- category: scent family (for example citrus, smoke, floral, savory)
- descriptors: 3 to 8 adjectives
- molecules: 3 to 6 primary volatile compounds
- base_volatility: 0.0 to 1.0, how readily this material releases odor
- reasoning: short justification tied to the visual evidence

Respond with a single JSON object containing exactly one entry per input interval:
{"scents": [{"index": 0, "category": "...", "descriptors": ["..."], "molecules": ["..."],
  "base_volatility": 0.5, "reasoning": "..."}]}`

// VisualUserPrompt describes the attached frames and carries any corrective directive.
func VisualUserPrompt(frames []model.Frame, directive string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following %d frames are in time order.", len(frames))
	if n := len(frames); n > 0 {
		fmt.Fprintf(&b, " The first is at %.2fs and the last at %.2fs.", frames[0].Timestamp, frames[n-1].Timestamp)
	}
	b.WriteString(" Each image is preceded by its frame id and timestamp.")
	if directive != "" {
		b.WriteString("\n\nCORRECTION REQUIRED: ")
		b.WriteString(directive)
	}
	return b.String()
}

// FrameCaption labels a single frame inside a multi-image request.
func FrameCaption(f model.Frame) string {
	return fmt.Sprintf("%s t=%.2fs", f.ID(), f.Timestamp)
}
