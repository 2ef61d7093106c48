package olfactory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/resilience"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Config controls the attempt loop.
type Config struct {
	RetryBudget    int
	RequestTimeout time.Duration
	Backoff        resilience.RetryConfig
}

// DefaultConfig returns the standard stage settings.
func DefaultConfig() Config {
	return Config{
		RetryBudget:    DefaultRetryBudget,
		RequestTimeout: DefaultRequestTimeout,
		Backoff:        resilience.InferenceRetryConfig(),
	}
}

func (c Config) withDefaults() Config {
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Result holds one profile per input interval, in interval order.
type Result struct {
	Profiles []model.ScentProfile
	Attempts int
}

// Orchestrator maps a frozen interval sequence to scent profiles.
type Orchestrator struct {
	infer inference.Olfactory
	cfg   Config
}

// New creates an orchestrator.
func New(infer inference.Olfactory, cfg Config) *Orchestrator {
	return &Orchestrator{infer: infer, cfg: cfg.withDefaults()}
}

type timelineEntry struct {
	Index int `json:"index"`
	model.VisualInterval
}

// EncodeTimeline serializes intervals as the stage request payload.
func EncodeTimeline(intervals []model.VisualInterval) ([]byte, error) {
	entries := make([]timelineEntry, len(intervals))
	for i, iv := range intervals {
		entries[i] = timelineEntry{Index: i, VisualInterval: iv}
	}
	b, err := json.Marshal(map[string]any{"visual_timeline": entries})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "encode visual timeline")
	}
	return b, nil
}

// Run requests profiles until a response parses to exactly one profile per interval.
// TRANSIENT and SCHEMA failures share the retry budget; anything else returns at once.
func (o *Orchestrator) Run(ctx context.Context, intervals []model.VisualInterval) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "olfactory_stage")
	defer span.End()
	span.SetAttr("intervals", len(intervals))
	log := trace.Logger(ctx)

	if len(intervals) == 0 {
		return Result{}, apperr.New(apperr.CodeValidation, "no intervals to assess")
	}
	payload, err := EncodeTimeline(intervals)
	if err != nil {
		return Result{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.RetryBudget; attempt++ {
		raw, err := o.request(ctx, payload)
		if err == nil {
			var profiles []model.ScentProfile
			profiles, err = Parse(raw, len(intervals))
			if err == nil {
				span.SetAttr("attempts", attempt)
				log.Info("scent profiles accepted", "attempt", attempt, "profiles", len(profiles))
				return Result{Profiles: profiles, Attempts: attempt}, nil
			}
		}

		if ctx.Err() != nil {
			return Result{}, apperr.Wrap(ctx.Err(), apperr.CodeCancelled, "olfactory stage cancelled")
		}
		if !resilience.IsRetryable(err) {
			return Result{}, err
		}
		lastErr = err
		log.Warn("olfactory attempt failed", "attempt", attempt, "budget", o.cfg.RetryBudget, "error", err)

		if attempt < o.cfg.RetryBudget && !apperr.IsCode(err, apperr.CodeSchema) {
			if err := resilience.Sleep(ctx, resilience.Backoff(o.cfg.Backoff, attempt-1)); err != nil {
				return Result{}, apperr.Wrap(err, apperr.CodeCancelled, "olfactory stage cancelled")
			}
		}
	}

	span.SetAttr("attempts", o.cfg.RetryBudget)
	return Result{}, apperr.Wrapf(lastErr, apperr.CodeOf(lastErr), "olfactory stage failed after %d attempt(s)", o.cfg.RetryBudget).
		WithMetadata("attempts", strconv.Itoa(o.cfg.RetryBudget))
}

func (o *Orchestrator) request(ctx context.Context, payload []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	raw, err := o.infer.InferOlfactory(callCtx, payload)
	switch {
	case err == nil:
		return raw, nil
	case ctx.Err() != nil:
		return "", err
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return "", apperr.Wrapf(err, apperr.CodeTransient, "olfactory inference exceeded %s", o.cfg.RequestTimeout)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return "", err
	}
	return "", apperr.Wrap(err, apperr.CodeTransient, "olfactory inference failed")
}
