package visual

import (
	"encoding/json"
	"strconv"
	"strings"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

type rawEnvironment struct {
	Temperature string `json:"temperature"`
	Airflow     string `json:"airflow"`
	Humidity    string `json:"humidity"`
	Confinement string `json:"confinement"`
}

type rawInterval struct {
	StartTime      *float64             `json:"start_time"`
	EndTime        *float64             `json:"end_time"`
	Scene          string               `json:"scene"`
	Objects        []model.VisualObject `json:"objects"`
	Proximity      string               `json:"proximity"`
	ProximityTrend string               `json:"proximity_trend"`
	FrameCoverage  *float64             `json:"frame_coverage"`
	ActivityLevel  string               `json:"activity_level"`
	Environment    *rawEnvironment      `json:"environment"`
	Rationale      string               `json:"rationale"`
}

type rawTimeline struct {
	VisualTimeline []rawInterval `json:"visual_timeline"`
}

// Parse turns a raw response into a time-ordered, non-overlapping candidate sequence.
// Every failure is a SCHEMA error, which the stage treats as retryable.
func Parse(raw string) ([]model.VisualInterval, error) {
	body := inference.CleanJSON(raw)
	if body == "" {
		return nil, apperr.New(apperr.CodeSchema, "empty response")
	}

	var items []rawInterval
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeSchema, "response is not a JSON interval array")
		}
	} else {
		var tl rawTimeline
		if err := json.Unmarshal([]byte(body), &tl); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeSchema, "response is not a JSON timeline object")
		}
		items = tl.VisualTimeline
	}
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeSchema, "visual_timeline is empty")
	}

	out := make([]model.VisualInterval, 0, len(items))
	for i, it := range items {
		iv, err := it.toModel()
		if err != nil {
			return nil, apperr.Wrapf(err, apperr.CodeSchema, "visual_timeline[%d]", i).
				WithMetadata("index", strconv.Itoa(i))
		}
		out = append(out, iv)
	}

	out = model.SortIntervals(out)
	for i := 1; i < len(out); i++ {
		if out[i].StartTime < out[i-1].EndTime {
			return nil, apperr.Newf(apperr.CodeSchema, "intervals %s and %s overlap", out[i-1].Span(), out[i].Span())
		}
	}
	return out, nil
}

func (r rawInterval) toModel() (model.VisualInterval, error) {
	switch {
	case r.StartTime == nil:
		return model.VisualInterval{}, apperr.New(apperr.CodeValidation, "start_time missing").WithMetadata("field", "start_time")
	case r.EndTime == nil:
		return model.VisualInterval{}, apperr.New(apperr.CodeValidation, "end_time missing").WithMetadata("field", "end_time")
	case r.FrameCoverage == nil:
		return model.VisualInterval{}, apperr.New(apperr.CodeValidation, "frame_coverage missing").WithMetadata("field", "frame_coverage")
	}

	iv := model.VisualInterval{
		StartTime:      *r.StartTime,
		EndTime:        *r.EndTime,
		Scene:          strings.TrimSpace(r.Scene),
		Objects:        r.Objects,
		Proximity:      model.Proximity(norm(r.Proximity)),
		ProximityTrend: model.Trend(norm(r.ProximityTrend)),
		FrameCoverage:  *r.FrameCoverage,
		ActivityLevel:  model.ActivityLevel(norm(r.ActivityLevel)),
		Rationale:      r.Rationale,
	}
	if e := r.Environment; e != nil {
		iv.Environment = &model.Environment{
			Temperature: model.ParseTemperature(e.Temperature),
			Airflow:     model.ParseAirflow(e.Airflow),
			Humidity:    model.ParseHumidity(e.Humidity),
			Confinement: model.ParseConfinement(e.Confinement),
		}
	}
	return model.NewVisualInterval(iv)
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
