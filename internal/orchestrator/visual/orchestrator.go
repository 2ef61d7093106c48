package visual

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/olfactory-vision/internal/coverage"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/resilience"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Config controls the attempt loop.
type Config struct {
	RetryBudget    int                    // total attempts, shared by transient, schema and coverage failures
	Threshold      float64                // minimum accepted coverage ratio
	RequestTimeout time.Duration          // per inference call
	MinGap         float64                // seconds; smaller gaps are not named in directives
	Backoff        resilience.RetryConfig // pause before retrying a transport failure
}

// DefaultConfig returns the standard stage settings.
func DefaultConfig() Config {
	return Config{
		RetryBudget:    DefaultRetryBudget,
		Threshold:      coverage.DefaultThreshold,
		RequestTimeout: DefaultRequestTimeout,
		MinGap:         DefaultMinGap,
		Backoff:        resilience.InferenceRetryConfig(),
	}
}

func (c Config) withDefaults() Config {
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.Threshold <= 0 {
		c.Threshold = coverage.DefaultThreshold
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MinGap < 0 {
		c.MinGap = 0
	}
	return c
}

// Result is an accepted candidate.
type Result struct {
	Intervals []model.VisualInterval
	Coverage  float64
	Attempts  int
}

// Orchestrator runs the visual stage for one video at a time. It holds no per-run state,
// so one value may serve concurrent runs.
type Orchestrator struct {
	infer inference.Visual
	cfg   Config
	hook  Hook
}

// New creates an orchestrator.
func New(infer inference.Visual, cfg Config) *Orchestrator {
	return &Orchestrator{infer: infer, cfg: cfg.withDefaults()}
}

// WithHook sets the transition observer.
func (o *Orchestrator) WithHook(h Hook) *Orchestrator {
	o.hook = h
	return o
}

// run is the mutable state of a single Run call.
type run struct {
	o       *Orchestrator
	state   State
	attempt int
	best    float64
	last    []model.VisualInterval
	lastErr error
}

func (r *run) to(next State, cov float64, err error) {
	t := Transition{From: r.state, To: next, Attempt: r.attempt, Coverage: cov, Err: err}
	r.state = next
	if r.o.hook != nil {
		r.o.hook(t)
	}
}

// Run requests intervals for frames until one candidate covers at least the threshold of
// total seconds or the retry budget is spent. On exhaustion it returns a *coverage.Error.
func (o *Orchestrator) Run(ctx context.Context, frames []model.Frame, total float64) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "visual_stage")
	defer span.End()
	span.SetAttr("frames", len(frames))
	span.SetAttr("duration_s", total)
	log := trace.Logger(ctx)

	if total <= 0 {
		return Result{}, apperr.Newf(apperr.CodeMedia, "video duration %v is not positive", total)
	}
	if len(frames) == 0 {
		return Result{}, apperr.New(apperr.CodeMedia, "no frames to analyze")
	}

	r := &run{o: o, state: Idle}
	directive := ""

	for r.attempt < o.cfg.RetryBudget {
		r.attempt++
		r.to(Requesting, 0, nil)

		raw, err := o.request(ctx, frames, directive)
		if err != nil {
			if ctx.Err() != nil {
				r.to(Exhausted, 0, ctx.Err())
				return Result{}, apperr.Wrap(ctx.Err(), apperr.CodeCancelled, "visual stage cancelled")
			}
			if !resilience.IsRetryable(err) {
				r.to(Exhausted, 0, err)
				return Result{}, err
			}
			log.Warn("visual inference failed", "attempt", r.attempt, "budget", o.cfg.RetryBudget, "error", err)
			r.lastErr = err
			if !r.retry(err) {
				break
			}
			if err := resilience.Sleep(ctx, resilience.Backoff(o.cfg.Backoff, r.attempt-1)); err != nil {
				return Result{}, apperr.Wrap(err, apperr.CodeCancelled, "visual stage cancelled")
			}
			continue
		}

		r.to(Parsing, 0, nil)
		candidate, err := Parse(raw)
		if err != nil {
			log.Warn("visual response rejected", "attempt", r.attempt, "error", err)
			r.lastErr = err
			directive = schemaDirective(err)
			if !r.retry(err) {
				break
			}
			continue
		}

		r.to(Validating, 0, nil)
		ratio := coverage.Compute(candidate, total)
		r.last = candidate
		r.best = max(r.best, ratio)
		log.Info("visual candidate", "attempt", r.attempt, "intervals", len(candidate), "coverage", ratio)

		if coverage.Sufficient(ratio, o.cfg.Threshold) {
			r.to(Accepted, ratio, nil)
			span.SetAttr("attempts", r.attempt)
			span.SetAttr("coverage", ratio)
			return Result{Intervals: candidate, Coverage: ratio, Attempts: r.attempt}, nil
		}

		gaps := coverage.Gaps(candidate, total, o.cfg.MinGap)
		r.lastErr = apperr.Newf(apperr.CodeCoverage, "coverage %.3f below %.2f", ratio, o.cfg.Threshold)
		directive = coverageDirective(ratio, total, gaps)
		if !r.retryFrom(ratio, r.lastErr) {
			break
		}
	}

	span.SetAttr("attempts", r.attempt)
	span.SetAttr("best_coverage", r.best)
	log.Error("visual stage exhausted", "attempts", r.attempt, "best_coverage", r.best)
	return Result{}, coverage.NewError(r.best, r.last, r.attempt, o.cfg.Threshold, r.lastErr)
}

// retry moves to Retrying when budget remains, otherwise to Exhausted.
func (r *run) retry(err error) bool { return r.retryFrom(0, err) }

func (r *run) retryFrom(cov float64, err error) bool {
	if r.attempt >= r.o.cfg.RetryBudget {
		r.to(Exhausted, cov, err)
		return false
	}
	r.to(Retrying, cov, err)
	return true
}

// request performs one bounded call. A per-call deadline is reported as TRANSIENT.
func (o *Orchestrator) request(ctx context.Context, frames []model.Frame, directive string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	raw, err := o.infer.InferVisual(callCtx, frames, directive)
	switch {
	case err == nil:
		return raw, nil
	case ctx.Err() != nil:
		return "", err
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return "", apperr.Wrapf(err, apperr.CodeTransient, "visual inference exceeded %s", o.cfg.RequestTimeout)
	}

	// Unclassified backend failures count as transient.
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return "", err
	}
	return "", apperr.Wrap(err, apperr.CodeTransient, "visual inference failed")
}

// coverageDirective names the uncovered ranges of the previous candidate.
func coverageDirective(ratio, total float64, gaps []model.Span) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous timeline covered only %.1f%% of the %.2fs video.", ratio*100, total)
	if len(gaps) > 0 {
		b.WriteString(" These time ranges were not described: ")
		for i, g := range gaps {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%.2fs-%.2fs", g.Start, g.End)
		}
		b.WriteString(".")
	}
	fmt.Fprintf(&b, " Return a complete timeline from 0.00s to %.2fs with no gaps and no overlaps.", total)
	return b.String()
}

// schemaDirective reports why the previous response could not be used.
func schemaDirective(err error) string {
	msg := err.Error()
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if appErr.Cause != nil {
			msg += ": " + appErr.Cause.Error()
		}
	}
	return "Your previous response could not be used (" + msg + "). " +
		"Return only a JSON object with a visual_timeline array using the required field names and values."
}
