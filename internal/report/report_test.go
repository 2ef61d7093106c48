package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	"github.com/GriffinCanCode/olfactory-vision/internal/enforce"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testAssembler() *Assembler {
	a := NewAssembler(0.95)
	a.Now = func() time.Time { return fixedTime }
	a.NewID = func() string { return "report-1" }
	return a
}

func interval(start, end float64, act model.ActivityLevel, prox model.Proximity) model.VisualInterval {
	return model.VisualInterval{
		StartTime: start, EndTime: end, Scene: "kitchen",
		Objects:   []model.VisualObject{{Name: "lemon"}},
		Proximity: prox, ProximityTrend: model.TrendStable, FrameCoverage: 0.5, ActivityLevel: act,
	}
}

func assessment(t *testing.T, value float64, label model.IntensityLabel) model.OlfactoryAssessment {
	t.Helper()
	a, err := model.NewOlfactoryAssessment(model.ScentProfile{
		Category: "citrus", Descriptors: []string{"zesty", "bright", "sharp", "sweet"},
		Molecules: []string{"limonene"}, BaseVolatility: 0.8,
	}, value, label)
	require.NoError(t, err)
	return a
}

func scenario(t *testing.T) Input {
	return Input{
		Source: "lemon.mp4", TotalDuration: 10, SamplingFPS: 4, FrameCount: 40, Attempts: 1,
		Models: Models{Visual: "vision-1", Olfactory: "text-1"},
		Intervals: []model.VisualInterval{
			interval(0, 2.5, model.ActivityHigh, model.ProximityNear),
			interval(2.5, 5, model.ActivityHigh, model.ProximityNear),
			interval(5, 10, model.ActivityLow, model.ProximityFar),
		},
		Assessments: []model.OlfactoryAssessment{
			assessment(t, 1.0, model.IntensityHigh),
			assessment(t, 1.0, model.IntensityHigh),
			assessment(t, 0.012, model.IntensityLow),
		},
	}
}

func TestAssemble(t *testing.T) {
	r, err := testAssembler().Assemble(scenario(t))
	require.NoError(t, err)

	m := r.Meta()
	assert.Equal(t, "report-1", m.ReportID)
	assert.Equal(t, fixedTime, m.GeneratedAt)
	assert.Equal(t, 1.0, m.Coverage)
	assert.Equal(t, "vision-1", m.Models.Visual)

	tl := r.Timeline()
	require.Len(t, tl, 3)
	assert.Equal(t, 2, tl[2].Index)
	assert.Equal(t, model.IntensityLow, tl[2].Scent.IntensityLabel)
	assert.Nil(t, r.FrameLog())
}

func TestAssembleCountMismatch(t *testing.T) {
	in := scenario(t)
	in.Assessments = in.Assessments[:2]
	_, err := testAssembler().Assemble(in)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAssembly, apperr.CodeOf(err))
}

func TestAssembleCoverageIsHardFailure(t *testing.T) {
	in := scenario(t)
	in.TotalDuration = 12
	_, err := testAssembler().Assemble(in)

	var covErr *coverage.Error
	require.ErrorAs(t, err, &covErr)
	assert.InDelta(t, 10.0/12, covErr.Best, 1e-12)
	assert.Len(t, covErr.Last, 3)
}

func TestAssembleRejectsDisorder(t *testing.T) {
	in := scenario(t)
	in.Intervals[0], in.Intervals[1] = in.Intervals[1], in.Intervals[0]
	_, err := testAssembler().Assemble(in)
	assert.Equal(t, apperr.CodeIntervalOrder, apperr.CodeOf(err))
}

func TestReportAccessorsCopy(t *testing.T) {
	r, err := testAssembler().Assemble(scenario(t))
	require.NoError(t, err)

	tl := r.Timeline()
	tl[0].Scent.Descriptors[0] = "mutated"
	tl[0].Objects[0].Name = "mutated"
	assert.Equal(t, "zesty", r.Timeline()[0].Scent.Descriptors[0])
	assert.Equal(t, "lemon", r.Timeline()[0].Objects[0].Name)
}

func TestEncodeRoundTrip(t *testing.T) {
	in := scenario(t)
	in.Frames = []FrameSample{{Index: 0, Timestamp: 0, PHash: "p:0", Changed: true}, {Index: 39, Timestamp: 9.75}}
	r, err := testAssembler().Assemble(in)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf))
	for _, key := range []string{`"meta"`, `"visual_timeline"`, `"scent"`, `"frame_log"`, `"intensity_label": "high"`, `"report_id": "report-1"`} {
		assert.Contains(t, buf.String(), key)
	}

	doc, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, r.Document(), doc)
}

func TestWriteAndReadFile(t *testing.T) {
	r, err := testAssembler().Assemble(scenario(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, r.WriteFile(path))
	doc, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "lemon.mp4", doc.Meta.Source)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = Decode(strings.NewReader("{"))
	assert.Equal(t, apperr.CodeSchema, apperr.CodeOf(err))
}

func TestBuildFrameLog(t *testing.T) {
	r, err := testAssembler().Assemble(scenario(t))
	require.NoError(t, err)

	log := BuildFrameLog([]FrameSample{
		{Index: 0, Timestamp: 0},
		{Index: 10, Timestamp: 2.5},
		{Index: 39, Timestamp: 9.75},
		{Index: 40, Timestamp: 10},
		{Index: 41, Timestamp: 10.25},
	}, r.Timeline())

	require.Len(t, log, 5)
	assert.Equal(t, 0, log[0].IntervalIndex)
	assert.Equal(t, 1, log[1].IntervalIndex, "start is inclusive")
	assert.Equal(t, 2, log[2].IntervalIndex)
	assert.Equal(t, 0.012, log[2].Intensity)
	assert.Equal(t, "frame_00039", log[2].FrameID)
	assert.Equal(t, []string{"zesty", "bright", "sharp"}, log[2].Descriptors)
	assert.Equal(t, 2, log[3].IntervalIndex, "end of the last interval")
	assert.Equal(t, -1, log[4].IntervalIndex)
	assert.Equal(t, model.IntensityNone, log[4].Label)
}

func TestCheck(t *testing.T) {
	r, err := testAssembler().Assemble(scenario(t))
	require.NoError(t, err)
	doc := r.Document()
	assert.Empty(t, Check(doc, CheckOptions{}))
	assert.Equal(t, []float64{1.0, 1.0, 0.012}, Curve(doc))

	doc.VisualTimeline[0].EndTime = 5
	doc.VisualTimeline[1].StartTime = 5
	doc.VisualTimeline[1].EndTime = 5.5
	doc.VisualTimeline[1].ActivityLevel = model.ActivityMedium
	doc.VisualTimeline[2].StartTime = 5.5
	doc.VisualTimeline[2].ActivityLevel = model.ActivityMedium
	doc.Meta.TotalDuration = 20

	findings := Check(doc, CheckOptions{})
	require.True(t, HasErrors(findings))

	var sev []string
	for _, f := range findings {
		sev = append(sev, f.String())
	}
	assert.Equal(t, []string{
		"[error] interval 0: high activity lasts 5.00s, limit 4.0s",
		"[warning] interval 2: medium activity lasts 4.50s",
		"[error] coverage 0.500 below 0.95",
	}, sev)
}

func TestCheckOrder(t *testing.T) {
	r, err := testAssembler().Assemble(scenario(t))
	require.NoError(t, err)
	doc := r.Document()
	doc.VisualTimeline[1].StartTime = 2

	findings := Check(doc, CheckOptions{})
	require.Len(t, findings, 1)
	assert.Equal(t, -1, findings[0].Index)
	assert.Contains(t, findings[0].Message, "overlaps")
}

func TestOutputPath(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := OutputPath("output_reports", "/videos/test video 3.mp4", at)
	assert.Equal(t, filepath.Join("output_reports", "test video 3_analysis_20260304_050607.json"), got)
}

func TestCheckAcceptsEnforcedSplits(t *testing.T) {
	base := model.VisualInterval{Scene: "forge", Proximity: model.ProximityNear, ProximityTrend: model.TrendStable}
	low, high := base, base
	low.StartTime, low.EndTime, low.ActivityLevel = 0, 10.88, model.ActivityLow
	high.StartTime, high.EndTime, high.ActivityLevel = 10.88, 26.880000000000003, model.ActivityHigh

	res, err := enforce.New(enforce.DefaultMaxHighActivity).Enforce([]model.VisualInterval{low, high})
	require.NoError(t, err)
	require.Equal(t, 4, res.Added)

	doc := Document{Meta: Meta{TotalDuration: high.EndTime}}
	for i, iv := range res.Intervals {
		doc.VisualTimeline = append(doc.VisualTimeline, TimelineEntry{Index: i, VisualInterval: iv, Scent: model.Scent{IntensityValue: 0.5}})
	}
	findings := Check(doc, CheckOptions{MaxHighActivity: enforce.DefaultMaxHighActivity})
	assert.False(t, HasErrors(findings), "findings: %v", findings)
}
