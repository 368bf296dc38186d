package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	defaultBufferSize     = 512
	minSinkBuffer         = 32
	maxSinkBuffer         = 1024
	defaultDropWarnPeriod = 5 * time.Second
	maxRetryShift         = 5
)

// Router fans published events out to sinks on background workers so
// publishers on the engine goroutine never wait on I/O. Drops are accounted
// per engine frame at the router queue and at every sink backlog.
type Router struct {
	clock    Clock
	fallback *log.Logger
	fields   map[string]any

	queue   chan Event
	workers []*sinkWorker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	floor     atomic.Int64
	forwarded atomic.Uint64
	filtered  atomic.Uint64
	drops     *dropLedger
}

// DropStats describes lost events in engine-frame terms. Frames counts
// distinct frames that lost at least one event.
type DropStats struct {
	Total     uint64 `json:"total"`
	Frames    uint64 `json:"frames"`
	LastFrame uint64 `json:"lastFrame"`
}

type SinkStats struct {
	Dropped  DropStats `json:"dropped"`
	Failures uint64    `json:"failures"`
}

type RouterStats struct {
	EventsTotal   uint64               `json:"eventsTotal"`
	FilteredTotal uint64               `json:"filteredTotal"`
	Dropped       DropStats            `json:"dropped"`
	Sinks         map[string]SinkStats `json:"sinks,omitempty"`
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	sinkBuffer := cfg.SinkBufferSize
	if sinkBuffer <= 0 {
		sinkBuffer = min(max(bufferSize, minSinkBuffer), maxSinkBuffer)
	}
	warnEvery := cfg.DropWarnInterval
	if warnEvery <= 0 {
		warnEvery = defaultDropWarnPeriod
	}

	fallback := log.New(os.Stderr, "[logging] ", log.LstdFlags)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		clock:    clock,
		fallback: fallback,
		fields:   cfg.CloneFields(),
		queue:    make(chan Event, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
		drops:    newDropLedger("router queue full", clock, warnEvery, fallback),
	}
	r.floor.Store(int64(cfg.MinimumSeverity))

	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			events:   make(chan Event, sinkBuffer),
			stop:     ctx.Done(),
			fallback: fallback,
			drops:    newDropLedger("sink "+named.Name+" backlog full", clock, warnEvery, fallback),
		})
	}

	r.wg.Add(1 + len(r.workers))
	go r.dispatch()
	for _, w := range r.workers {
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(w)
	}
	return r, nil
}

// dispatch moves events from the publish queue to every sink backlog until
// Close, then flushes what is still queued and closes the backlogs.
func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.ctx.Done():
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.MinimumSeverity() {
		r.filtered.Add(1)
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = r.withFields(event)
	r.forwarded.Add(1)
	for _, w := range r.workers {
		w.enqueue(event)
	}
}

func (r *Router) withFields(event Event) Event {
	if len(r.fields) == 0 {
		return event
	}
	event = cloneForFields(event)
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(r.fields))
	}
	for k, v := range r.fields {
		if _, exists := event.Extra[k]; !exists {
			event.Extra[k] = v
		}
	}
	return event
}

// Publish never blocks. Untyped events and events after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.drops.record(event)
	}
}

// SetMinimumSeverity changes the severity floor for events forwarded after
// the call returns.
func (r *Router) SetMinimumSeverity(sev Severity) {
	r.floor.Store(int64(sev))
}

func (r *Router) MinimumSeverity() Severity {
	return Severity(r.floor.Load())
}

// Close flushes queued events and closes every sink. It is idempotent.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:   r.forwarded.Load(),
		FilteredTotal: r.filtered.Load(),
		Dropped:       r.drops.stats(),
	}
	if len(r.workers) > 0 {
		stats.Sinks = make(map[string]SinkStats, len(r.workers))
		for _, w := range r.workers {
			stats.Sinks[w.name] = SinkStats{Dropped: w.drops.stats(), Failures: w.failed.Load()}
		}
	}
	return stats
}

func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// dropLedger counts lost events and the frames they belonged to, and emits
// at most one summary warning per interval.
type dropLedger struct {
	what      string
	clock     Clock
	warnEvery time.Duration
	fallback  *log.Logger

	mu        sync.Mutex
	total     uint64
	frames    uint64
	lastFrame uint64
	seen      bool
	pending   uint64
	firstLost uint64
	nextWarn  time.Time
}

func newDropLedger(what string, clock Clock, warnEvery time.Duration, fallback *log.Logger) *dropLedger {
	return &dropLedger{what: what, clock: clock, warnEvery: warnEvery, fallback: fallback}
}

func (d *dropLedger) record(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.total++
	if !d.seen || event.Frame != d.lastFrame {
		d.frames++
	}
	d.seen = true
	d.lastFrame = event.Frame
	if d.pending == 0 {
		d.firstLost = event.Frame
	}
	d.pending++

	now := d.clock.Now()
	if now.Before(d.nextWarn) {
		return
	}
	d.fallback.Printf("%s: dropped %d events in frames %d..%d, last type=%s", d.what, d.pending, d.firstLost, event.Frame, event.Type)
	d.pending = 0
	d.nextWarn = now.Add(d.warnEvery)
}

func (d *dropLedger) stats() DropStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DropStats{Total: d.total, Frames: d.frames, LastFrame: d.lastFrame}
}

type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	stop     <-chan struct{}
	fallback *log.Logger
	drops    *dropLedger
	failed   atomic.Uint64

	// Owned by run.
	failures  int
	nextRetry time.Time
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- cloneForFields(event):
	default:
		w.drops.record(event)
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		w.backoff()
		if err := w.sink.Write(event); err != nil {
			w.fail(err)
			continue
		}
		w.failures = 0
	}
}

// backoff waits out a failing sink's retry delay. Once the router is
// closing the backlog is flushed without waiting.
func (w *sinkWorker) backoff() {
	if w.failures == 0 {
		return
	}
	wait := time.Until(w.nextRetry)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.stop:
	}
}

func (w *sinkWorker) fail(err error) {
	w.failed.Add(1)
	w.failures++
	delay := time.Duration(1<<min(w.failures, maxRetryShift)) * time.Second
	w.nextRetry = time.Now().Add(delay)
	w.fallback.Printf("sink %s failed: %v (retry in %s)", w.name, err, delay)
}
