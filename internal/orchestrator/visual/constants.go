// Package visual drives the visual inference stage until its output covers the video.
package visual

import "time"

// Stage defaults
const (
	DefaultRetryBudget    = 3
	DefaultRequestTimeout = 3 * time.Minute

	// Uncovered ranges shorter than this are not named in a corrective directive.
	DefaultMinGap = 0.25
)
