// Package batch runs the pipeline over a directory of videos with bounded parallelism and
// paced starts.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// DefaultPattern matches the videos a batch picks up.
const DefaultPattern = "*.mp4"

// Video is one discovered input. Number is the first integer in the file name, -1 if none.
type Video struct {
	Path   string
	Number int
}

var numberRe = regexp.MustCompile(`\d+`)

// Filter selects videos by number; zero bounds are open.
type Filter struct {
	From int
	To   int
}

func (f Filter) active() bool { return f.From > 0 || f.To > 0 }

func (f Filter) match(n int) bool {
	if !f.active() {
		return true
	}
	if n < 0 {
		return false
	}
	return (f.From <= 0 || n >= f.From) && (f.To <= 0 || n <= f.To)
}

// Discover lists files in dir matching pattern, ordered by number (numbered first), then name.
func Discover(dir, pattern string, f Filter) ([]Video, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeNotFound, "read video directory").WithMetadata("dir", dir)
	}

	var out []Video
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeConfigInvalid, "bad pattern").WithMetadata("pattern", pattern)
		}
		if !ok {
			continue
		}
		v := Video{Path: filepath.Join(dir, e.Name()), Number: -1}
		if m := numberRe.FindString(e.Name()); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				v.Number = n
			}
		}
		if f.match(v.Number) {
			out = append(out, v)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Number >= 0 && b.Number < 0:
			return true
		case a.Number < 0 && b.Number >= 0:
			return false
		case a.Number != b.Number:
			return a.Number < b.Number
		}
		return a.Path < b.Path
	})
	return out, nil
}

// Process analyzes one video and returns where its report was written.
type Process func(ctx context.Context, path string) (string, error)

// Options bound a batch.
type Options struct {
	Concurrency int           // videos in flight; at least 1
	Cooldown    time.Duration // minimum spacing between starts; zero disables pacing
}

// Result is one video's outcome.
type Result struct {
	Video    Video
	Output   string
	Err      error
	Duration time.Duration
}

// Summary holds every result in input order.
type Summary struct {
	Results []Result
}

// Succeeded counts results without error.
func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results with an error.
func (s Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Run processes videos. A failed video is recorded and the batch continues; only
// cancellation stops it early, in which case unstarted videos carry CANCELLED.
func Run(ctx context.Context, videos []Video, process Process, opts Options) Summary {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	limit := rate.Inf
	if opts.Cooldown > 0 {
		limit = rate.Every(opts.Cooldown)
	}
	limiter := rate.NewLimiter(limit, 1)
	log := trace.Logger(ctx)

	results := make([]Result, len(videos))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, v := range videos {
		results[i] = Result{Video: v}
		if err := limiter.Wait(gctx); err != nil {
			results[i].Err = apperr.Wrap(err, apperr.CodeCancelled, "batch cancelled")
			continue
		}
		g.Go(func() error {
			start := time.Now()
			out, err := process(gctx, v.Path)
			results[i] = Result{Video: v, Output: out, Err: err, Duration: time.Since(start)}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if err != nil {
				log.Error("video failed", "path", v.Path, "done", n, "total", len(videos), "error", err)
			} else {
				log.Info("video analyzed", "path", v.Path, "output", out, "done", n, "total", len(videos),
					"elapsed", results[i].Duration.Round(time.Millisecond))
			}
			return nil
		})
	}
	_ = g.Wait()
	return Summary{Results: results}
}
