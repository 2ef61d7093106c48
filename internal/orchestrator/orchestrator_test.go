package orchestrator

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/media"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/olfactory"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/visual"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
)

// 10s clip: 5s of close, vigorous cutting followed by 5s of a distant, idle scene.
const scenarioTimeline = `{"visual_timeline": [
	{"start_time": 0, "end_time": 5, "scene": "kitchen counter",
	 "objects": [{"name": "lemon", "visual_state": "sliced", "interaction": "cutting"}],
	 "proximity": "near", "proximity_trend": "stable", "frame_coverage": 0.8, "activity_level": "high"},
	{"start_time": 5, "end_time": 10, "scene": "kitchen counter",
	 "objects": [{"name": "lemon", "visual_state": "sliced", "interaction": "none"}],
	 "proximity": "far", "proximity_trend": "receding", "frame_coverage": 0.2, "activity_level": "low"}
]}`

const scenarioScents = `{"scents": [
	{"index": 0, "category": "citrus", "descriptors": ["zesty", "bright"], "molecules": ["limonene", "citral"], "base_volatility": 0.9, "reasoning": "fresh cut peel"},
	{"index": 1, "category": "citrus", "descriptors": ["zesty", "bright"], "molecules": ["limonene", "citral"], "base_volatility": 0.9, "reasoning": "fresh cut peel"},
	{"index": 2, "category": "citrus", "descriptors": ["faint"], "molecules": ["limonene"], "base_volatility": 0.3, "reasoning": "distant"}
]}`

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	stages map[string]string
	splits int
	labels []string
}

func newRecorder() *recorder { return &recorder{stages: map[string]string{}} }

func (r *recorder) Add(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) StageDone(stage string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "ok"
	if err != nil {
		status = apperr.CodeOf(err).String()
	}
	r.stages[stage] = status
}

func (r *recorder) Intensity(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
}

func (r *recorder) Splits(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.splits += n
}

func (r *recorder) Attempts(string, int) {}
func (r *recorder) Coverage(float64)     {}
func (r *recorder) RunStarted()          {}
func (r *recorder) RunFinished()         {}

func frames(n int, fps float64) []model.Frame {
	out := make([]model.Frame, n)
	for i := range out {
		out[i] = model.Frame{Index: i, Timestamp: float64(i) / fps, Image: []byte{0xFF, 0xD8}}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Visual = visual.Config{RetryBudget: 3, RequestTimeout: time.Second}
	cfg.Olfactory = olfactory.Config{RetryBudget: 2, RequestTimeout: time.Second}
	cfg.Threshold = 0.95
	cfg.Models = report.Models{Visual: "vision-test", Olfactory: "text-test"}
	return cfg
}

func newManager(t *testing.T, v inference.Visual, o inference.Olfactory, rec *recorder) *Manager {
	t.Helper()
	m, err := New(Deps{Visual: v, Olfactory: o, Observer: rec, Events: rec}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func fixedVisual(body string) inference.VisualFunc {
	return func(context.Context, []model.Frame, string) (string, error) { return body, nil }
}

func fixedOlfactory(body string) inference.OlfactoryFunc {
	return func(context.Context, []byte) (string, error) { return body, nil }
}

func TestEndToEndScenario(t *testing.T) {
	rec := newRecorder()
	var payload string
	olf := inference.OlfactoryFunc(func(_ context.Context, b []byte) (string, error) {
		payload = string(b)
		return scenarioScents, nil
	})
	m := newManager(t, fixedVisual(scenarioTimeline), olf, rec)

	rep, err := m.Run(context.Background(), Input{RunID: "run-1", Source: "lemon.mp4", Duration: 10, FPS: 4, Frames: frames(40, 4)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	tl := rep.Timeline()
	if len(tl) != 3 {
		t.Fatalf("timeline length = %d, want 3", len(tl))
	}
	wantSpans := [][2]float64{{0, 2.5}, {2.5, 5}, {5, 10}}
	wantValues := []float64{1.0, 1.0, 0.012}
	wantLabels := []model.IntensityLabel{model.IntensityHigh, model.IntensityHigh, model.IntensityLow}
	for i, e := range tl {
		if e.StartTime != wantSpans[i][0] || e.EndTime != wantSpans[i][1] {
			t.Errorf("interval %d = [%v, %v), want %v", i, e.StartTime, e.EndTime, wantSpans[i])
		}
		if math.Abs(e.Scent.IntensityValue-wantValues[i]) > 1e-9 {
			t.Errorf("interval %d intensity = %v, want %v", i, e.Scent.IntensityValue, wantValues[i])
		}
		if e.Scent.IntensityLabel != wantLabels[i] {
			t.Errorf("interval %d label = %q, want %q", i, e.Scent.IntensityLabel, wantLabels[i])
		}
	}

	meta := rep.Meta()
	if meta.ReportID != "run-1" || meta.Coverage != 1 || meta.Attempts != 1 || meta.FrameCount != 40 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Enforcement.Split != 1 || meta.Enforcement.Added != 1 {
		t.Errorf("enforcement = %+v", meta.Enforcement)
	}
	if meta.Models.Visual != "vision-test" {
		t.Errorf("models = %+v", meta.Models)
	}
	if n := len(rep.FrameLog()); n != 40 {
		t.Errorf("frame log length = %d, want 40", n)
	}
	if !strings.Contains(payload, `"index":2`) {
		t.Errorf("olfactory payload should carry the enforced sequence: %s", payload)
	}

	if rec.splits != 1 {
		t.Errorf("splits = %d, want 1", rec.splits)
	}
	if got := strings.Join(rec.labels, ","); got != "high,high,low" {
		t.Errorf("labels = %s", got)
	}
	for _, stage := range []string{StageVisual, StageEnforce, StageOlfactory, StageIntensity, StageAssemble} {
		if rec.stages[stage] != "ok" {
			t.Errorf("stage %s status = %q, want ok", stage, rec.stages[stage])
		}
	}
	last := rec.events[len(rec.events)-1]
	if last.State != progress.StateDone || last.RunID != "run-1" {
		t.Errorf("last event = %+v", last)
	}
}

func TestVisualExhaustionFailsPipeline(t *testing.T) {
	rec := newRecorder()
	half := `{"visual_timeline": [{"start_time": 0, "end_time": 5, "scene": "s", "proximity": "near",
		"proximity_trend": "stable", "frame_coverage": 0.5, "activity_level": "low"}]}`
	olfCalled := false
	m := newManager(t, fixedVisual(half), inference.OlfactoryFunc(func(context.Context, []byte) (string, error) {
		olfCalled = true
		return "", nil
	}), rec)

	_, err := m.Run(context.Background(), Input{Duration: 10, FPS: 4, Frames: frames(40, 4)})

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want *FailedError", err)
	}
	if failed.Stage != StageVisual {
		t.Errorf("stage = %q", failed.Stage)
	}
	if apperr.CodeOf(err) != apperr.CodePipelineFailed {
		t.Errorf("outer code = %v", apperr.CodeOf(err))
	}
	var covErr *coverage.Error
	if !errors.As(err, &covErr) || covErr.Attempts != 3 {
		t.Errorf("coverage error = %v", covErr)
	}
	if failed.Partial.Coverage != 0.5 || len(failed.Partial.Intervals) != 1 {
		t.Errorf("partial = %+v", failed.Partial)
	}
	if olfCalled {
		t.Error("olfactory stage must not run after Stage 1 fails")
	}
	if rec.stages[StageVisual] != "COVERAGE" {
		t.Errorf("visual stage status = %q", rec.stages[StageVisual])
	}
}

func TestOlfactoryFailureKeepsEnforcedIntervals(t *testing.T) {
	m := newManager(t, fixedVisual(scenarioTimeline), fixedOlfactory(`{"scents": []}`), newRecorder())

	_, err := m.Run(context.Background(), Input{Duration: 10, FPS: 4, Frames: frames(40, 4)})

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want *FailedError", err)
	}
	if failed.Stage != StageOlfactory {
		t.Errorf("stage = %q", failed.Stage)
	}
	if !apperr.IsCode(err, apperr.CodeSchema) {
		t.Errorf("cause should be SCHEMA: %v", err)
	}
	if len(failed.Partial.Intervals) != 3 || failed.Partial.Profiles != nil {
		t.Errorf("partial = %+v", failed.Partial)
	}
}

func TestCancellationYieldsNoReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	vis := inference.VisualFunc(func(ctx context.Context, _ []model.Frame, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := newManager(t, vis, fixedOlfactory(scenarioScents), newRecorder())

	rep, err := m.Run(ctx, Input{Duration: 10, FPS: 4, Frames: frames(40, 4)})
	if !apperr.IsCode(err, apperr.CodeCancelled) {
		t.Fatalf("err = %v, want CANCELLED", err)
	}
	var failed *FailedError
	if errors.As(err, &failed) {
		t.Error("cancellation must not carry partial state")
	}
	if rep.Meta().ReportID != "" {
		t.Error("no report expected")
	}
}

type fakeExtractor struct{ err error }

func (f fakeExtractor) Extract(_ context.Context, path string, fps float64) (*media.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &media.Video{Path: path, FPS: fps, Info: media.Info{Duration: 10}, Frames: frames(int(10*fps), fps)}, nil
}

func TestAnalyzeFile(t *testing.T) {
	m, err := New(Deps{
		Visual:    fixedVisual(scenarioTimeline),
		Olfactory: fixedOlfactory(scenarioScents),
		Extractor: fakeExtractor{},
	}, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	rep, err := m.AnalyzeFile(context.Background(), "", "clips/lemon.mp4", 4)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if rep.Meta().Source != "clips/lemon.mp4" || rep.Meta().SamplingFPS != 4 || rep.Meta().ReportID == "" {
		t.Errorf("meta = %+v", rep.Meta())
	}

	m.extractor = fakeExtractor{err: apperr.New(apperr.CodeMedia, "corrupt")}
	if _, err := m.AnalyzeFile(context.Background(), "r", "x.mp4", 4); apperr.CodeOf(err) != apperr.CodeMedia {
		t.Errorf("err = %v, want MEDIA", err)
	}

	m.extractor = nil
	if _, err := m.AnalyzeFile(context.Background(), "r", "x.mp4", 4); apperr.CodeOf(err) != apperr.CodeConfigInvalid {
		t.Errorf("err = %v, want CONFIG_INVALID", err)
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	m := newManager(t, fixedVisual(scenarioTimeline), fixedOlfactory(scenarioScents), newRecorder())

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}
	errs := make([]error, len(ids))
	reps := make([]report.Report, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reps[i], errs[i] = m.Run(context.Background(), Input{RunID: id, Duration: 10, FPS: 4, Frames: frames(40, 4)})
		}()
	}
	wg.Wait()

	for i, id := range ids {
		if errs[i] != nil {
			t.Errorf("run %s: %v", id, errs[i])
			continue
		}
		if reps[i].Meta().ReportID != id {
			t.Errorf("run %s got report %s", id, reps[i].Meta().ReportID)
		}
	}
}

func TestNewRequiresCapabilities(t *testing.T) {
	if _, err := New(Deps{Visual: fixedVisual("")}, testConfig()); apperr.CodeOf(err) != apperr.CodeConfigInvalid {
		t.Errorf("err = %v, want CONFIG_INVALID", err)
	}
}

func TestUnparsedExhaustionKeepsTransientCause(t *testing.T) {
	down := inference.VisualFunc(func(context.Context, []model.Frame, string) (string, error) {
		return "", apperr.New(apperr.CodeTransient, "503")
	})
	m := newManager(t, down, fixedOlfactory(scenarioScents), newRecorder())

	_, err := m.Run(context.Background(), Input{Duration: 10, FPS: 4, Frames: frames(40, 4)})

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want *FailedError", err)
	}
	var app *apperr.AppError
	if !errors.As(failed.Unwrap(), &app) || app.Metadata["cause"] != "TRANSIENT" {
		t.Errorf("cause metadata = %v, want TRANSIENT", app.Metadata)
	}
	if failed.Partial.Attempts != 3 || failed.Partial.Intervals != nil {
		t.Errorf("partial = %+v", failed.Partial)
	}
}
