// Package resilience guards calls to inference backends with circuit breakers and paced
// retries.
package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Retry presets. Inference providers rate-limit bursts of multi-image requests, so their
// pauses are longer.
const (
	DefaultAttempts  = 4
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 10 * time.Second
	DefaultJitter    = 0.2

	InferenceBaseDelay = 2 * time.Second
	InferenceMaxDelay  = 30 * time.Second
)

// RetryConfig paces repeated calls. Attempts counts every call, the first included.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64 // fraction of the delay randomized in both directions
	Retryable func(error) bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		Jitter:    DefaultJitter,
		Retryable: IsRetryable,
	}
}

// InferenceRetryConfig paces the attempts of a stage orchestrator. Those count attempts
// against their own budget, so only the delays matter here.
func InferenceRetryConfig() RetryConfig {
	c := DefaultRetryConfig()
	c.BaseDelay, c.MaxDelay = InferenceBaseDelay, InferenceMaxDelay
	return c
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = max(d.MaxDelay, c.BaseDelay)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = d.Jitter
	}
	if c.Retryable == nil {
		c.Retryable = IsRetryable
	}
	return c
}

// Retry calls fn until it succeeds, fails permanently, runs out of attempts or ctx ends.
// It returns fn's last error, or ctx's error when ctx ended first.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.normalized()
	var err error
	for n := 0; n < cfg.Attempts; n++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil || !cfg.Retryable(err) || n == cfg.Attempts-1 {
			return err
		}
		d := Backoff(cfg, n)
		slog.Debug("retrying", "attempt", n+1, "of", cfg.Attempts, "delay", d, "error", err)
		if serr := Sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return err
}

// Backoff is the pause after the given zero-based failed attempt: doubling from BaseDelay,
// capped at MaxDelay when set, then jittered. A zero BaseDelay means no pause.
func Backoff(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 0; i < min(attempt, 30) && (cfg.MaxDelay <= 0 || d < cfg.MaxDelay); i++ {
		d *= 2
	}
	if cfg.MaxDelay > 0 {
		d = min(d, cfg.MaxDelay)
	}
	if cfg.Jitter <= 0 || cfg.Jitter > 1 {
		return d
	}
	spread := float64(d) * cfg.Jitter
	return time.Duration(float64(d) - spread + 2*spread*rand.Float64())
}

// Sleep waits for d, returning early with ctx's error if ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
