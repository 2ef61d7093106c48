package store

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// EventWriter accumulates progress events and writes them to the store in batches.
// It implements progress.Sink.
type EventWriter struct {
	store      *Store
	maxSize    int
	flushDelay time.Duration
	mu         sync.Mutex
	items      []progress.Event
	timer      *time.Timer
	wg         sync.WaitGroup
}

var _ progress.Sink = (*EventWriter)(nil)

// NewEventWriter creates a writer flushing at maxSize events or flushDelay after the last add.
func NewEventWriter(store *Store, maxSize int, flushDelay time.Duration) *EventWriter {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &EventWriter{
		store:      store,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		items:      make([]progress.Event, 0, maxSize),
	}
}

// Add queues an event.
func (w *EventWriter) Add(e progress.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items = append(w.items, e)
	if len(w.items) >= w.maxSize {
		w.flushLocked()
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.flushDelay, w.Flush)
	} else {
		w.timer.Reset(w.flushDelay)
	}
}

func (w *EventWriter) flushLocked() {
	if len(w.items) == 0 {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	items := w.items
	w.items = make([]progress.Event, 0, w.maxSize)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, span := trace.StartSpan(context.Background(), "event_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		if err := w.store.AppendEvents(ctx, items); err != nil {
			span.Fail(err)
			trace.Logger(ctx).Warn("event batch write failed", "error", err, "count", len(items))
		}
	}()
}

// Flush starts writing pending events immediately.
func (w *EventWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// Close flushes pending events and waits for every write to finish.
func (w *EventWriter) Close() {
	w.Flush()
	w.wg.Wait()
}
