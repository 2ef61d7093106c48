package olfactory

import (
	"encoding/json"
	"strconv"
	"strings"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

type rawScent struct {
	Index          *int     `json:"index"`
	Category       string   `json:"category"`
	Descriptors    []string `json:"descriptors"`
	Molecules      []string `json:"molecules"`
	BaseVolatility *float64 `json:"base_volatility"`
	Reasoning      string   `json:"reasoning"`
}

type rawScents struct {
	Scents []rawScent `json:"scents"`
}

// Parse decodes a response into exactly n profiles ordered by interval index.
// Entries without an index are taken positionally, but only when none carries one.
func Parse(raw string, n int) ([]model.ScentProfile, error) {
	body := inference.CleanJSON(raw)
	if body == "" {
		return nil, apperr.New(apperr.CodeSchema, "empty response")
	}

	var items []rawScent
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeSchema, "response is not a JSON scent array")
		}
	} else {
		var rs rawScents
		if err := json.Unmarshal([]byte(body), &rs); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeSchema, "response is not a JSON scents object")
		}
		items = rs.Scents
	}
	if len(items) != n {
		return nil, apperr.Newf(apperr.CodeSchema, "got %d scents for %d intervals", len(items), n)
	}

	indexed := 0
	for _, it := range items {
		if it.Index != nil {
			indexed++
		}
	}
	if indexed != 0 && indexed != n {
		return nil, apperr.Newf(apperr.CodeSchema, "%d of %d scents carry an index", indexed, n)
	}

	out := make([]model.ScentProfile, n)
	seen := make([]bool, n)
	for pos, it := range items {
		idx := pos
		if it.Index != nil {
			idx = *it.Index
		}
		if idx < 0 || idx >= n {
			return nil, apperr.Newf(apperr.CodeSchema, "scent index %d out of range", idx).
				WithMetadata("index", strconv.Itoa(idx))
		}
		if seen[idx] {
			return nil, apperr.Newf(apperr.CodeSchema, "duplicate scent index %d", idx).
				WithMetadata("index", strconv.Itoa(idx))
		}
		seen[idx] = true

		p, err := it.toModel()
		if err != nil {
			return nil, apperr.Wrapf(err, apperr.CodeSchema, "scents[%d]", pos).
				WithMetadata("index", strconv.Itoa(idx))
		}
		out[idx] = p
	}
	return out, nil
}

func (r rawScent) toModel() (model.ScentProfile, error) {
	if r.BaseVolatility == nil {
		return model.ScentProfile{}, apperr.New(apperr.CodeValidation, "base_volatility missing").
			WithMetadata("field", "base_volatility")
	}
	p := model.ScentProfile{
		Category:       strings.ToLower(strings.TrimSpace(r.Category)),
		Descriptors:    r.Descriptors,
		Molecules:      trimAll(r.Molecules),
		BaseVolatility: *r.BaseVolatility,
		Reasoning:      strings.TrimSpace(r.Reasoning),
	}
	if err := p.Validate(); err != nil {
		return model.ScentProfile{}, err
	}
	return p, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
