// Package intensity turns an interval's visual metrics and a scent's base volatility into a
// bounded intensity value and label.
package intensity

import (
	"math"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Thresholds are the inclusive lower bounds of the medium and high labels.
// Any positive value below Medium is labeled low.
type Thresholds struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// DefaultThresholds returns the standard label cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: DefaultMediumThreshold, High: DefaultHighThreshold}
}

// Validate checks 0 < Medium <= High <= 1.
func (t Thresholds) Validate() error {
	if !(t.Medium > 0 && t.Medium <= t.High && t.High <= 1) {
		return apperr.Newf(apperr.CodeConfigInvalid,
			"intensity thresholds must satisfy 0 < medium <= high <= 1, got medium=%v high=%v", t.Medium, t.High)
	}
	return nil
}

// Modifiers toggles the physical-effect adjustments. All are off by default.
type Modifiers struct {
	Thermodynamic bool `yaml:"thermodynamic"`
	Hygrometric   bool `yaml:"hygrometric"`
	Aerodynamic   bool `yaml:"aerodynamic"`
}

// Config is passed explicitly to the engine; there is no package-level state.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds"`
	Modifiers  Modifiers  `yaml:"modifiers"`
}

// DefaultConfig returns default thresholds with every modifier disabled.
func DefaultConfig() Config {
	return Config{Thresholds: DefaultThresholds()}
}

// Input is everything the formula reads.
type Input struct {
	BaseVolatility float64
	Activity       model.ActivityLevel
	FrameCoverage  float64
	Proximity      model.Proximity
	Environment    *model.Environment
}

// InputFor builds an Input from an interval and a scent profile.
func InputFor(iv model.VisualInterval, p model.ScentProfile) Input {
	return Input{
		BaseVolatility: p.BaseVolatility,
		Activity:       iv.ActivityLevel,
		FrameCoverage:  iv.FrameCoverage,
		Proximity:      iv.Proximity,
		Environment:    iv.Environment,
	}
}

// Result is one computed intensity plus the factors that produced it.
type Result struct {
	Value          float64
	Label          model.IntensityLabel
	BaseVolatility float64 // after modifiers and clamping
	Activity       float64
	Proximity      float64 // after modifiers
}

// Engine computes intensities. It is safe for concurrent use.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute evaluates clamp(base * activity * coverage * proximity, 0, 1).
// The multiplication order is fixed so identical inputs give bit-identical output.
func (e *Engine) Compute(in Input) (Result, error) {
	if !finite(in.BaseVolatility) || in.BaseVolatility < 0 || in.BaseVolatility > 1 {
		return Result{}, apperr.Newf(apperr.CodeValidation, "base_volatility %v outside [0,1]", in.BaseVolatility).
			WithMetadata("field", "base_volatility")
	}
	if !finite(in.FrameCoverage) || in.FrameCoverage < 0 || in.FrameCoverage > 1 {
		return Result{}, apperr.Newf(apperr.CodeValidation, "frame_coverage %v outside [0,1]", in.FrameCoverage).
			WithMetadata("field", "frame_coverage")
	}
	act, ok := activityMultiplier[in.Activity]
	if !ok {
		return Result{}, apperr.Newf(apperr.CodeValidation, "unknown activity_level %q", in.Activity).
			WithMetadata("field", "activity_level")
	}
	prox, ok := proximityFactor[in.Proximity]
	if !ok {
		return Result{}, apperr.Newf(apperr.CodeValidation, "unknown proximity %q", in.Proximity).
			WithMetadata("field", "proximity")
	}

	base := clamp01(in.BaseVolatility * e.volatilityFactor(in.Environment))
	prox *= e.proximityModifier(in.Environment)

	value := clamp01(base * act * in.FrameCoverage * prox)
	return Result{
		Value:          value,
		Label:          e.Label(value),
		BaseVolatility: base,
		Activity:       act,
		Proximity:      prox,
	}, nil
}

// Label discretizes a value using the configured thresholds.
func (e *Engine) Label(v float64) model.IntensityLabel {
	switch {
	case v >= e.cfg.Thresholds.High:
		return model.IntensityHigh
	case v >= e.cfg.Thresholds.Medium:
		return model.IntensityMedium
	case v > 0:
		return model.IntensityLow
	default:
		return model.IntensityNone
	}
}

// Assess computes the intensity for an interval and freezes it into an assessment.
func (e *Engine) Assess(iv model.VisualInterval, p model.ScentProfile) (model.OlfactoryAssessment, error) {
	r, err := e.Compute(InputFor(iv, p))
	if err != nil {
		return model.OlfactoryAssessment{}, err
	}
	return model.NewOlfactoryAssessment(p, r.Value, r.Label)
}

// volatilityFactor is temperature then humidity, each 1.0 when disabled or unknown.
func (e *Engine) volatilityFactor(env *model.Environment) float64 {
	f := 1.0
	if env == nil {
		return f
	}
	if e.cfg.Modifiers.Thermodynamic {
		f *= lookup(temperatureFactor, env.Temperature)
	}
	if e.cfg.Modifiers.Hygrometric {
		f *= lookup(humidityFactor, env.Humidity)
	}
	return f
}

func (e *Engine) proximityModifier(env *model.Environment) float64 {
	if env == nil || !e.cfg.Modifiers.Aerodynamic {
		return 1.0
	}
	return lookup(airflowFactor, env.Airflow) * lookup(confinementFactor, env.Confinement)
}

func lookup[K comparable](m map[K]float64, k K) float64 {
	if f, ok := m[k]; ok {
		return f
	}
	return 1.0
}

func clamp01(f float64) float64 { return math.Min(1, math.Max(0, f)) }

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
