package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
)

// State is the circuit position. The numeric values are exported as a metric.
type State uint32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned without calling the dependency. It is UNAVAILABLE, so stage
// orchestrators spend an attempt on it like any other transport failure.
var ErrOpen error = apperr.New(apperr.CodeUnavailable, "circuit breaker open")

// Counts is a snapshot of a breaker.
type Counts struct {
	State     State
	Failures  int // consecutive failures while closed
	Successes int // probe successes while half-open
	Opened    time.Time
}

// Breaker guards one dependency. While half-open it lets a single probe through at a time.
type Breaker struct {
	cfg  Config
	now  func() time.Time
	hook func(from, to State)

	mu      sync.Mutex
	counts  Counts
	probing bool
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.normalized(), now: time.Now}
}

// WithHook registers fn to run after every state change. It is called without the
// breaker's lock held.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.mu.Lock()
	b.hook = fn
	b.mu.Unlock()
	return b
}

func (b *Breaker) Name() string { return b.cfg.Name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts.State
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.setState(Closed)
	b.mu.Unlock()
	notify()
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.release(err)
	return err
}

// ExecuteWithResult is Execute for calls that return a value.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.acquire(); err != nil {
		return zero, err
	}
	v, err := fn()
	b.release(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	notify := func() {}
	defer func() {
		b.mu.Unlock()
		notify()
	}()

	switch b.counts.State {
	case Open:
		if b.now().Sub(b.counts.Opened) < b.cfg.ResetTimeout {
			return ErrOpen
		}
		notify = b.setState(HalfOpen)
		b.probing = true
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	notify := func() {}
	defer func() {
		b.mu.Unlock()
		notify()
	}()

	wasProbe := b.counts.State == HalfOpen
	if wasProbe {
		b.probing = false
	}
	switch {
	case err == nil:
		if !wasProbe {
			b.counts.Failures = 0
			return
		}
		b.counts.Successes++
		if b.counts.Successes >= b.cfg.HalfOpenSuccesses {
			notify = b.setState(Closed)
		}
	case errors.Is(err, context.Canceled):
		// the caller gave up; the dependency may be fine
	case wasProbe:
		notify = b.setState(Open)
	default:
		b.counts.Failures++
		if b.counts.State == Closed && b.counts.Failures >= b.cfg.Threshold {
			notify = b.setState(Open)
		}
	}
}

// setState must be called with mu held. The returned func runs the hook and must be called
// after unlocking.
func (b *Breaker) setState(to State) func() {
	from := b.counts.State
	if from == to {
		return func() {}
	}
	failures := b.counts.Failures
	b.counts = Counts{State: to}
	b.probing = false
	if to == Open {
		b.counts.Opened = b.now()
	}

	hook := b.hook
	return func() {
		switch to {
		case Open:
			slog.Warn("circuit breaker opened", "name", b.cfg.Name, "failures", failures, "from", from.String())
		default:
			slog.Info("circuit breaker "+to.String(), "name", b.cfg.Name)
		}
		if hook != nil {
			hook(from, to)
		}
	}
}
