package model

import (
	"slices"
	"strings"
)

// ScentProfile is the per-interval output of the semantic-to-chemical capability,
// before any intensity has been computed.
type ScentProfile struct {
	Category       string   `json:"category" validate:"required"`
	Descriptors    []string `json:"descriptors"`
	Molecules      []string `json:"molecules"`
	BaseVolatility float64  `json:"base_volatility" validate:"gte=0,lte=1"`
	Reasoning      string   `json:"reasoning"`
}

// Validate checks the profile's field ranges.
func (p ScentProfile) Validate() error {
	if !finite(p.BaseVolatility) {
		return invalidf("base_volatility", "base_volatility is not finite")
	}
	if err := validate.Struct(p); err != nil {
		return validationError(err)
	}
	return nil
}

// OlfactoryAssessment is the immutable scent estimate attached 1:1 to a VisualInterval.
type OlfactoryAssessment struct {
	category       string
	descriptors    []string
	molecules      []string
	baseVolatility float64
	intensityValue float64
	intensityLabel IntensityLabel
	reasoning      string
}

// NewOlfactoryAssessment builds an assessment from a validated profile and a computed intensity.
// Descriptors are de-duplicated case-insensitively, keeping first occurrence order.
func NewOlfactoryAssessment(p ScentProfile, value float64, label IntensityLabel) (OlfactoryAssessment, error) {
	if err := p.Validate(); err != nil {
		return OlfactoryAssessment{}, err
	}
	if !finite(value) || value < 0 || value > 1 {
		return OlfactoryAssessment{}, invalidf("intensity_value", "intensity_value %v outside [0,1]", value)
	}
	if !label.Valid() {
		return OlfactoryAssessment{}, invalidf("intensity_label", "unknown intensity_label %q", label)
	}
	return OlfactoryAssessment{
		category:       p.Category,
		descriptors:    dedupeFold(p.Descriptors),
		molecules:      slices.Clone(p.Molecules),
		baseVolatility: p.BaseVolatility,
		intensityValue: value,
		intensityLabel: label,
		reasoning:      p.Reasoning,
	}, nil
}

func (a OlfactoryAssessment) Category() string               { return a.category }
func (a OlfactoryAssessment) Descriptors() []string          { return slices.Clone(a.descriptors) }
func (a OlfactoryAssessment) Molecules() []string            { return slices.Clone(a.molecules) }
func (a OlfactoryAssessment) BaseVolatility() float64        { return a.baseVolatility }
func (a OlfactoryAssessment) IntensityValue() float64        { return a.intensityValue }
func (a OlfactoryAssessment) IntensityLabel() IntensityLabel { return a.intensityLabel }
func (a OlfactoryAssessment) Reasoning() string              { return a.reasoning }

// Scent is the JSON shape of an assessment nested under a timeline entry.
type Scent struct {
	Category       string         `json:"category"`
	Descriptors    []string       `json:"descriptors"`
	Molecules      []string       `json:"molecules"`
	BaseVolatility float64        `json:"base_volatility"`
	IntensityValue float64        `json:"intensity_value"`
	IntensityLabel IntensityLabel `json:"intensity_label"`
	Reasoning      string         `json:"reasoning"`
}

// Scent exports the assessment for serialization.
func (a OlfactoryAssessment) Scent() Scent {
	return Scent{
		Category:       a.category,
		Descriptors:    a.Descriptors(),
		Molecules:      a.Molecules(),
		BaseVolatility: a.baseVolatility,
		IntensityValue: a.intensityValue,
		IntensityLabel: a.intensityLabel,
		Reasoning:      a.reasoning,
	}
}

func dedupeFold(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
