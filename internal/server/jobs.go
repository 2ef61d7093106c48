package server

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
	"github.com/GriffinCanCode/olfactory-vision/internal/store"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Job is the public view of one analysis.
type Job struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	FPS        float64    `json:"fps"`
	Status     string     `json:"status"`
	Stage      string     `json:"stage,omitempty"`
	Attempt    int        `json:"attempt,omitempty"`
	Coverage   float64    `json:"coverage,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	Output     string     `json:"output,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type jobState struct {
	Job
	cancel context.CancelFunc
	report *report.Report
}

func (j jobState) terminal() bool { return j.Status != store.StatusRunning }

type analyzeRequest struct {
	Path string  `json:"path"`
	FPS  float64 `json:"fps"`
}

// handleAnalyze accepts either a JSON body naming a local file or a multipart upload with a
// "video" file part, and starts an asynchronous job.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.readAnalyzeRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.FPS == 0 {
		req.FPS = s.opts.FPS
	}
	if req.FPS < 0 {
		cleanup()
		writeError(w, r, apperr.New(apperr.CodeValidation, "fps must be positive"))
		return
	}
	if fi, err := os.Stat(req.Path); err != nil || fi.IsDir() {
		cleanup()
		writeError(w, r, apperr.New(apperr.CodeValidation, "video not found").WithMetadata("path", req.Path))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	if tc, ok := trace.FromContext(r.Context()); ok {
		ctx = trace.WithContext(ctx, tc)
	}

	st := jobState{
		Job: Job{
			ID:        uuid.NewString(),
			Source:    req.Path,
			FPS:       req.FPS,
			Status:    store.StatusRunning,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	if !s.jobs.Put(st.ID, st) {
		cancel()
		cleanup()
		writeError(w, r, apperr.New(apperr.CodeUnavailable, "too many running jobs"))
		return
	}
	if s.history != nil {
		if err := s.history.Start(r.Context(), st.ID, st.Source); err != nil {
			trace.Logger(r.Context()).Warn("run history start failed", "run_id", st.ID, "error", err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer cleanup()
		s.runJob(ctx, st.Job)
	}()

	w.Header().Set("Location", "/api/jobs/"+st.ID)
	writeJSON(w, http.StatusAccepted, st.Job)
}

func (s *Server) readAnalyzeRequest(w http.ResponseWriter, r *http.Request) (analyzeRequest, func(), error) {
	noop := func() {}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		var req analyzeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBytes)).Decode(&req); err != nil {
			return req, noop, apperr.Wrap(err, apperr.CodeValidation, "body must be JSON with a path")
		}
		if req.Path == "" {
			return req, noop, apperr.New(apperr.CodeValidation, "path is required")
		}
		return req, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("video")
	if err != nil {
		return analyzeRequest{}, noop, apperr.Wrap(err, apperr.CodeValidation, "multipart body needs a video part")
	}
	defer file.Close()

	var req analyzeRequest
	if v := r.FormValue("fps"); v != "" {
		if req.FPS, err = strconv.ParseFloat(v, 64); err != nil {
			return req, noop, apperr.Wrap(err, apperr.CodeValidation, "fps must be a number")
		}
	}

	dir, err := os.MkdirTemp(s.opts.UploadDir, "vos-upload-*")
	if err != nil {
		return req, noop, apperr.Wrap(err, apperr.CodeInternal, "create upload dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	req.Path = filepath.Join(dir, filepath.Base(header.Filename))
	dst, err := os.Create(req.Path)
	if err != nil {
		cleanup()
		return req, noop, apperr.Wrap(err, apperr.CodeInternal, "store upload")
	}
	_, err = io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return req, noop, apperr.Wrap(err, apperr.CodeValidation, "read upload")
	}
	return req, cleanup, nil
}

func (s *Server) runJob(ctx context.Context, job Job) {
	log := trace.Logger(trace.WithRunID(ctx, job.ID))
	rep, err := s.pipeline.AnalyzeFile(ctx, job.ID, job.Source, job.FPS)

	now := time.Now().UTC()
	out := store.OutcomeOf(rep, err)
	var output string
	if err == nil {
		if s.opts.OutputDir != "" {
			output = report.OutputPath(s.opts.OutputDir, job.Source, now)
			if werr := rep.WriteFile(output); werr != nil {
				log.Error("report write failed", "path", output, "error", werr)
				output = ""
			}
		}
		log.Info("job succeeded", "coverage", out.Coverage, "intervals", len(rep.Timeline()), "output", output)
	} else {
		log.Warn("job ended", "status", out.Status, "code", out.ErrorCode, "error", err)
	}

	s.jobs.Update(job.ID, func(j *jobState) {
		j.Status, j.ErrorCode, j.Error, j.Output = out.Status, out.ErrorCode, out.Error, output
		j.FinishedAt = &now
		if out.Coverage > 0 {
			j.Coverage = out.Coverage
		}
		if err == nil {
			j.report = &rep
		}
	})
	if s.history != nil {
		// the job context may already be cancelled; history must still be written
		if herr := s.history.Finish(context.WithoutCancel(ctx), job.ID, out); herr != nil {
			log.Warn("run history finish failed", "error", herr)
		}
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	states := s.jobs.Values()
	jobs := make([]Job, len(states))
	for i, st := range states {
		jobs[i] = st.Job
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, apperr.New(apperr.CodeNotFound, "job not found").WithMetadata("id", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, st.Job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	st, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, apperr.New(apperr.CodeNotFound, "job not found").WithMetadata("id", r.PathValue("id")))
		return
	}
	if st.terminal() {
		writeJSON(w, http.StatusConflict, st.Job)
		return
	}
	st.cancel()
	writeJSON(w, http.StatusAccepted, st.Job)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if st, ok := s.jobs.Get(id); ok {
		switch {
		case st.report != nil:
			writeJSON(w, http.StatusOK, *st.report)
			return
		case !st.terminal():
			writeError(w, r, apperr.New(apperr.CodeUnavailable, "job is still running").WithMetadata("id", id))
			return
		}
	}
	if s.history == nil {
		writeError(w, r, apperr.New(apperr.CodeNotFound, "report not found").WithMetadata("id", id))
		return
	}
	body, err := s.history.Report(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events := s.events.ForRun(id)
	if len(events) == 0 && s.history != nil {
		var err error
		if events, err = s.history.Events(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if events == nil {
		events = []progress.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
