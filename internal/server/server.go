package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/store"
	"github.com/GriffinCanCode/olfactory-vision/internal/syncx"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Pipeline analyzes one video file. *orchestrator.Manager satisfies it.
type Pipeline interface {
	AnalyzeFile(ctx context.Context, runID, path string, fps float64) (report.Report, error)
}

// History is durable run storage. *store.Store satisfies it.
type History interface {
	Start(ctx context.Context, id, source string) error
	Finish(ctx context.Context, id string, o store.Outcome) error
	List(ctx context.Context, limit int) ([]store.Run, error)
	Report(ctx context.Context, id string) ([]byte, error)
	Events(ctx context.Context, runID string) ([]progress.Event, error)
}

// Options configure job handling.
type Options struct {
	FPS       float64 // used when a request names none
	OutputDir string  // reports are also written here when set
	UploadDir string  // uploaded videos; empty uses the OS temp dir
}

// Deps are the server's collaborators. History, Metrics and Health are optional.
type Deps struct {
	Pipeline Pipeline
	Events   *progress.MemoryStore // the sink the pipeline reports to
	History  History
	Metrics  http.Handler
	Health   func(context.Context) error
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	pipeline Pipeline
	events   *progress.MemoryStore
	history  History
	metrics  http.Handler
	health   func(context.Context) error
	opts     Options

	jobs *syncx.Registry[string, jobState]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	conns map[*websocket.Conn]*client
}

// New creates a server and starts its event broadcaster.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Pipeline == nil || deps.Events == nil {
		return nil, apperr.New(apperr.CodeConfigInvalid, "server needs a pipeline and an event store")
	}
	if opts.FPS <= 0 {
		return nil, apperr.New(apperr.CodeConfigInvalid, "default fps must be positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		pipeline: deps.Pipeline,
		events:   deps.Events,
		history:  deps.History,
		metrics:  deps.Metrics,
		health:   deps.Health,
		opts:     opts,
		jobs:     syncx.NewRegistry[string, jobState](MaxJobs, func(j jobState) bool { return j.terminal() }),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[*websocket.Conn]*client),
	}

	s.wg.Add(1)
	go s.broadcastEvents()
	return s, nil
}

// Close cancels running jobs and waits for them and the broadcaster to stop.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/jobs/{id}/report", s.handleReport)
	mux.HandleFunc("GET /api/jobs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/runs", s.handleRuns)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", trace.TraceparentKey+", Location")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, apperr.New(apperr.CodeUnavailable, "run history is disabled"))
		return
	}
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, apperr.New(apperr.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string            `json:"error"`
	Code  string            `json:"code"`
	Meta  map[string]string `json:"metadata,omitempty"`
}

// writeError maps an error code to an HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	body := errorBody{Error: err.Error(), Code: code.String()}
	var appErr *apperr.AppError
	if apperr.As(err, &appErr) {
		body.Error, body.Meta = appErr.Message, appErr.Metadata
	}

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidation, apperr.CodeConfigInvalid, apperr.CodeMedia:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeUnavailable, apperr.CodeRateLimited:
		status = http.StatusServiceUnavailable
	case apperr.CodeCancelled:
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		trace.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "code", body.Code)
	}
	writeJSON(w, status, body)
}
