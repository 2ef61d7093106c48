package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/store"
)

// fakePipeline reports one event and then waits for release or cancellation.
type fakePipeline struct {
	events  *progress.MemoryStore
	release chan struct{}
	err     error

	mu    sync.Mutex
	paths []string
	fps   []float64
}

func (f *fakePipeline) AnalyzeFile(ctx context.Context, runID, path string, fps float64) (report.Report, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.fps = append(f.fps, fps)
	f.mu.Unlock()

	f.events.Add(progress.Event{RunID: runID, Stage: "visual", State: "accepted", Attempt: 2, Coverage: 0.97})
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return report.Report{}, apperr.Wrap(ctx.Err(), apperr.CodeCancelled, "pipeline cancelled")
		}
	}
	if f.err != nil {
		return report.Report{}, f.err
	}
	return testReport(runID, path)
}

func testReport(id, source string) (report.Report, error) {
	iv := model.VisualInterval{
		StartTime: 0, EndTime: 10, Scene: "kitchen", Proximity: model.ProximityNear,
		ProximityTrend: model.TrendStable, FrameCoverage: 0.5, ActivityLevel: model.ActivityLow,
	}
	a, err := model.NewOlfactoryAssessment(model.ScentProfile{
		Category: "citrus", Descriptors: []string{"zesty"}, Molecules: []string{"limonene"}, BaseVolatility: 0.8,
	}, 0.4, model.IntensityMedium)
	if err != nil {
		return report.Report{}, err
	}
	return report.NewAssembler(0.95).Assemble(report.Input{
		ID: id, Source: source, TotalDuration: 10, SamplingFPS: 4, FrameCount: 40, Attempts: 2,
		Intervals: []model.VisualInterval{iv}, Assessments: []model.OlfactoryAssessment{a},
	})
}

type env struct {
	srv      *Server
	http     *httptest.Server
	pipeline *fakePipeline
	history  *store.Store
	video    string
	out      string
}

func newEnv(t *testing.T, release bool) *env {
	t.Helper()
	events := progress.NewStore(100, 100)
	p := &fakePipeline{events: events}
	if release {
		p.release = make(chan struct{})
	}
	history, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = history.Close() })

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "reports")

	srv, err := New(Deps{
		Pipeline: p,
		Events:   events,
		History:  history,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("vos_runs_in_flight 0\n")) }),
	}, Options{FPS: 4, OutputDir: out, UploadDir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return &env{srv: srv, http: hs, pipeline: p, history: history, video: video, out: out}
}

func (e *env) analyze(t *testing.T, body string) (*http.Response, Job) {
	t.Helper()
	resp, err := http.Post(e.http.URL+"/api/analyze", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var job Job
	_ = json.NewDecoder(resp.Body).Decode(&job)
	return resp, job
}

func (e *env) job(t *testing.T, id string) Job {
	t.Helper()
	resp, err := http.Get(e.http.URL + "/api/jobs/" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	return job
}

func (e *env) waitStatus(t *testing.T, id, status string) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if j := e.job(t, id); j.Status == status {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s (last %+v)", id, status, e.job(t, id))
	return Job{}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, DELETE, OPTIONS" {
		t.Errorf("CORS methods = %q", v)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Errorf("GET status = %d, want pass-through", rec.Code)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, Options{FPS: 4}); !apperr.IsCode(err, apperr.CodeConfigInvalid) {
		t.Errorf("New(no deps) err = %v", err)
	}
	if _, err := New(Deps{Pipeline: &fakePipeline{}, Events: progress.NewStore(0, 0)}, Options{}); !apperr.IsCode(err, apperr.CodeConfigInvalid) {
		t.Errorf("New(no fps) err = %v", err)
	}
}

func TestAnalyzeJobSucceeds(t *testing.T) {
	e := newEnv(t, true)

	resp, job := e.analyze(t, `{"path": "`+e.video+`", "fps": 2}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "/api/jobs/"+job.ID || job.Status != store.StatusRunning {
		t.Errorf("job = %+v, location = %q", job, resp.Header.Get("Location"))
	}
	if resp.Header.Get("traceparent") == "" {
		t.Error("response should carry a traceparent")
	}

	// report is not ready while the job runs
	r, err := http.Get(e.http.URL + "/api/jobs/" + job.ID + "/report")
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("early report status = %d, want 503", r.StatusCode)
	}

	close(e.pipeline.release)
	done := e.waitStatus(t, job.ID, store.StatusSucceeded)
	if done.Stage != "visual" || done.Attempt != 2 {
		t.Errorf("progress not tracked: %+v", done)
	}
	if done.Output == "" || done.FinishedAt == nil {
		t.Errorf("finished job = %+v", done)
	}
	if _, err := os.Stat(done.Output); err != nil {
		t.Errorf("report file: %v", err)
	}
	if e.pipeline.fps[0] != 2 {
		t.Errorf("fps = %v, want 2", e.pipeline.fps[0])
	}

	r, err = http.Get(e.http.URL + "/api/jobs/" + job.ID + "/report")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Body.Close()
	doc, err := report.Decode(r.Body)
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.Meta.ReportID != job.ID || len(doc.VisualTimeline) != 1 {
		t.Errorf("report meta = %+v", doc.Meta)
	}

	run, err := e.history.Get(context.Background(), job.ID)
	if err != nil || run.Status != store.StatusSucceeded || run.Attempts != 2 {
		t.Errorf("history = %+v, %v", run, err)
	}
}

func TestAnalyzeDefaultsFPS(t *testing.T) {
	e := newEnv(t, false)
	_, job := e.analyze(t, `{"path": "`+e.video+`"}`)
	e.waitStatus(t, job.ID, store.StatusSucceeded)
	if job.FPS != 4 {
		t.Errorf("FPS = %v, want server default 4", job.FPS)
	}
}

func TestAnalyzeRejects(t *testing.T) {
	e := newEnv(t, false)
	tests := map[string]string{
		"not json":     `nope`,
		"no path":      `{"fps": 2}`,
		"missing file": `{"path": "/nonexistent/clip.mp4"}`,
		"negative fps": `{"path": "` + e.video + `", "fps": -1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, _ := e.analyze(t, body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestAnalyzeUpload(t *testing.T) {
	e := newEnv(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("video", "upload.mp4")
	_, _ = part.Write([]byte("video bytes"))
	_ = mw.WriteField("fps", "1")
	_ = mw.Close()

	resp, err := http.Post(e.http.URL+"/api/analyze", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var job Job
	_ = json.NewDecoder(resp.Body).Decode(&job)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	e.waitStatus(t, job.ID, store.StatusSucceeded)

	if filepath.Base(e.pipeline.paths[0]) != "upload.mp4" || e.pipeline.fps[0] != 1 {
		t.Errorf("pipeline got %v at %v", e.pipeline.paths, e.pipeline.fps)
	}
	if _, err := os.Stat(e.pipeline.paths[0]); !os.IsNotExist(err) {
		t.Error("upload should be removed after the job")
	}
}

func TestJobFailureRecorded(t *testing.T) {
	e := newEnv(t, false)
	e.pipeline.err = apperr.New(apperr.CodeMedia, "no video stream")

	_, job := e.analyze(t, `{"path": "`+e.video+`"}`)
	done := e.waitStatus(t, job.ID, store.StatusFailed)
	if done.ErrorCode != "MEDIA" {
		t.Errorf("ErrorCode = %q, want MEDIA", done.ErrorCode)
	}

	r, err := http.Get(e.http.URL + "/api/jobs/" + job.ID + "/report")
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusNotFound {
		t.Errorf("report of failed job status = %d, want 404", r.StatusCode)
	}
}

func TestCancelJob(t *testing.T) {
	e := newEnv(t, true)
	_, job := e.analyze(t, `{"path": "`+e.video+`"}`)

	req, _ := http.NewRequest(http.MethodDelete, e.http.URL+"/api/jobs/"+job.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("DELETE status = %d, want 202", resp.StatusCode)
	}
	done := e.waitStatus(t, job.ID, store.StatusCancelled)
	if done.ErrorCode != "CANCELLED" {
		t.Errorf("ErrorCode = %q", done.ErrorCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second DELETE status = %d, want 409", resp.StatusCode)
	}
}

func TestUnknownJob(t *testing.T) {
	e := newEnv(t, false)
	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/report"} {
		resp, err := http.Get(e.http.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound || body.Code != "NOT_FOUND" {
			t.Errorf("%s: status = %d, body = %+v", path, resp.StatusCode, body)
		}
	}
}

func TestRunsAndEvents(t *testing.T) {
	e := newEnv(t, false)
	_, job := e.analyze(t, `{"path": "`+e.video+`"}`)
	e.waitStatus(t, job.ID, store.StatusSucceeded)

	resp, err := http.Get(e.http.URL + "/api/runs?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	var runs []store.Run
	_ = json.NewDecoder(resp.Body).Decode(&runs)
	resp.Body.Close()
	if len(runs) != 1 || runs[0].ID != job.ID {
		t.Errorf("runs = %+v", runs)
	}

	resp, err = http.Get(e.http.URL + "/api/runs?limit=x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}

	resp, err = http.Get(e.http.URL + "/api/jobs/" + job.ID + "/events")
	if err != nil {
		t.Fatal(err)
	}
	var events []progress.Event
	_ = json.NewDecoder(resp.Body).Decode(&events)
	resp.Body.Close()
	if len(events) != 1 || events[0].State != "accepted" {
		t.Errorf("events = %+v", events)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, false)

	resp, err := http.Get(e.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	resp, err = http.Get(e.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(buf.String(), "vos_runs_in_flight") {
		t.Errorf("metrics body = %q", buf.String())
	}

	e.srv.health = func(context.Context) error { return apperr.New(apperr.CodeUnavailable, "inference down") }
	resp, err = http.Get(e.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unhealthy healthz = %d", resp.StatusCode)
	}
}

func TestWebSocketStreamsSubscribedRun(t *testing.T) {
	e := newEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.http.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, job := e.analyze(t, `{"path": "`+e.video+`"}`)
	if err := wsjson.Write(ctx, conn, SubscribeMessage{Type: "subscribe", RunID: job.ID}); err != nil {
		t.Fatal(err)
	}

	// the run's event arrives either live or as a replay after subscribing
	var msg EventMessage
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "event" || msg.Event.RunID != job.ID || msg.Event.Stage != "visual" {
		t.Errorf("message = %+v", msg)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: "chat"}); err != nil {
		t.Fatal(err)
	}
	close(e.pipeline.release)
	for {
		var raw map[string]any
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			t.Fatalf("read: %v", err)
		}
		if raw["type"] == "error" {
			if !strings.Contains(raw["message"].(string), "unknown message type") {
				t.Errorf("error message = %v", raw["message"])
			}
			return
		}
	}
}
