// Package report assembles, encodes and checks the final analysis artifact.
package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Models names the backends that produced each stage.
type Models struct {
	Visual    string `json:"visual"`
	Olfactory string `json:"olfactory"`
}

// Enforcement summarizes what the constraint enforcer changed.
type Enforcement struct {
	MaxHighActivity float64 `json:"max_high_activity_s"`
	Split           int     `json:"split_intervals"`
	Added           int     `json:"added_intervals"`
}

// Meta describes the run that produced a report.
type Meta struct {
	ReportID      string      `json:"report_id"`
	Source        string      `json:"source"`
	TotalDuration float64     `json:"total_duration"`
	SamplingFPS   float64     `json:"sampling_fps"`
	FrameCount    int         `json:"frame_count"`
	GeneratedAt   time.Time   `json:"generated_at"`
	Models        Models      `json:"models"`
	Attempts      int         `json:"attempts"`
	Coverage      float64     `json:"coverage"`
	Enforcement   Enforcement `json:"enforcement"`
}

// TimelineEntry is one interval with its scent nested under it.
type TimelineEntry struct {
	Index int `json:"index"`
	model.VisualInterval
	Scent model.Scent `json:"scent"`
}

func (e TimelineEntry) clone() TimelineEntry {
	c := e
	c.VisualInterval = e.VisualInterval.Clone()
	c.Scent.Descriptors = slices.Clone(e.Scent.Descriptors)
	c.Scent.Molecules = slices.Clone(e.Scent.Molecules)
	return c
}

// FrameLogEntry is the intensity seen at one sampled frame.
type FrameLogEntry struct {
	Timestamp     float64              `json:"t_s"`
	FrameID       string               `json:"frame_id"`
	IntervalIndex int                  `json:"interval_index"` // -1 when no interval covers the frame
	Intensity     float64              `json:"intensity"`
	Label         model.IntensityLabel `json:"intensity_label"`
	Descriptors   []string             `json:"dominant_descriptors"`
	PHash         string               `json:"phash,omitempty"`
	Changed       bool                 `json:"changed"`
}

// Document is the JSON form of a report.
type Document struct {
	Meta           Meta            `json:"meta"`
	VisualTimeline []TimelineEntry `json:"visual_timeline"`
	FrameLog       []FrameLogEntry `json:"frame_log,omitempty"`
}

func (d Document) clone() Document {
	c := Document{Meta: d.Meta}
	c.VisualTimeline = make([]TimelineEntry, len(d.VisualTimeline))
	for i, e := range d.VisualTimeline {
		c.VisualTimeline[i] = e.clone()
	}
	if d.FrameLog != nil {
		c.FrameLog = make([]FrameLogEntry, len(d.FrameLog))
		for i, f := range d.FrameLog {
			f.Descriptors = slices.Clone(f.Descriptors)
			c.FrameLog[i] = f
		}
	}
	return c
}

// Report is an assembled, immutable analysis. Accessors return copies.
type Report struct {
	doc Document
}

func (r Report) Meta() Meta                   { return r.doc.Meta }
func (r Report) Timeline() []TimelineEntry    { return r.doc.clone().VisualTimeline }
func (r Report) FrameLog() []FrameLogEntry    { return r.doc.clone().FrameLog }
func (r Report) Document() Document           { return r.doc.clone() }
func (r Report) MarshalJSON() ([]byte, error) { return json.Marshal(r.doc) }

// Encode writes the report as indented JSON.
func (r Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.doc); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "encode report")
	}
	return nil
}

// WriteFile writes the report to path, creating parent directories.
func (r Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "create report directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "create report file")
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Decode reads a report document. It does not re-validate it; see Check.
func Decode(rd io.Reader) (Document, error) {
	var d Document
	if err := json.NewDecoder(rd).Decode(&d); err != nil {
		return Document{}, apperr.Wrap(err, apperr.CodeSchema, "decode report")
	}
	return d, nil
}

// ReadFile decodes the report stored at path.
func ReadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, apperr.Wrap(err, apperr.CodeNotFound, "open report").WithMetadata("path", path)
	}
	defer f.Close()
	return Decode(f)
}

// OutputPath names a report file for source: <dir>/<base>_analysis_<YYYYMMDD_HHMMSS>.json.
func OutputPath(dir, source string, at time.Time) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, base+"_analysis_"+at.Format("20060102_150405")+".json")
}
