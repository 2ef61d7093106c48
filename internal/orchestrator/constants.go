// Package orchestrator runs the analysis pipeline for one video: visual stage, constraint
// enforcement, olfactory stage with intensity, then report assembly.
package orchestrator

// Stage names used in spans, metrics and progress events.
const (
	StageExtract   = "extract"
	StageVisual    = "visual"
	StageEnforce   = "enforce"
	StageOlfactory = "olfactory"
	StageIntensity = "intensity"
	StageAssemble  = "assemble"
)

// Progress states emitted around each stage.
const (
	stateStarted  = "started"
	stateFinished = "finished"
)
