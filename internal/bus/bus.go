// Package bus provides the FIFO command bus modules use to hand work to a
// single logical consumer. Producers on any goroutine never block; the first
// consumer identity to read claims the bus for its lifetime.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	occupancyMetricKey  = "bus_occupancy"
	overflowMetricKey   = "bus_overflow_total"
	violationMetricKey  = "bus_consumer_violations_total"
	initialRingCapacity = 16
)

// ErrSingleConsumerViolation indicates a second consumer identity read the bus.
var ErrSingleConsumerViolation = errors.New("bus: single consumer violation")

// ViolationError names the owning and the offending consumer.
type ViolationError struct {
	Owner     string
	Intruder  string
	Operation string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("bus: consumer %q called %s on a bus owned by %q", e.Intruder, e.Operation, e.Owner)
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrSingleConsumerViolation
}

// ViolationHook observes violations before the assertion policy applies.
type ViolationHook func(err *ViolationError, total uint64)

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// Options configures a bus. The zero value is an unbounded bus with no hook.
type Options struct {
	// Capacity bounds TrySend. Zero means unbounded. Send ignores it.
	Capacity    int
	OnViolation ViolationHook
	Metrics     telemetryMetrics
}

// Bus stores events in a growable ring. It is safe for concurrent producers
// and a single consumer.
type Bus[E any] struct {
	mu    sync.Mutex
	data  []E
	head  int
	count int

	capacity    int
	onViolation ViolationHook
	metrics     telemetryMetrics

	owner      atomic.Pointer[string]
	violations atomic.Uint64
}

// New constructs a bus.
func New[E any](opts Options) *Bus[E] {
	capacity := opts.Capacity
	if capacity < 0 {
		capacity = 0
	}
	return &Bus[E]{
		data:        make([]E, initialRingCapacity),
		capacity:    capacity,
		onViolation: opts.OnViolation,
		metrics:     opts.Metrics,
	}
}

// Send enqueues an event. It never blocks and never drops.
func (b *Bus[E]) Send(event E) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushLocked(event)
}

// TrySend enqueues an event unless the configured capacity is reached.
func (b *Bus[E]) TrySend(event E) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity > 0 && b.count >= b.capacity {
		if b.metrics != nil {
			b.metrics.Add(overflowMetricKey, 1)
		}
		return false
	}
	b.pushLocked(event)
	return true
}

// TryRecv pops the oldest event on behalf of consumer.
func (b *Bus[E]) TryRecv(consumer string) (E, bool) {
	var zero E
	if b == nil {
		return zero, false
	}
	b.claim(consumer, "TryRecv")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return zero, false
	}
	event := b.data[b.head]
	b.data[b.head] = zero
	b.head = (b.head + 1) % len(b.data)
	b.count--
	b.storeOccupancyLocked()
	return event, true
}

// DrainInto appends every queued event to dst in FIFO order.
func (b *Bus[E]) DrainInto(consumer string, dst []E) []E {
	if b == nil {
		return dst
	}
	b.claim(consumer, "DrainInto")
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked(dst)
}

// Drain passes every queued event to fn in FIFO order. The lock is released
// before fn runs, so fn may send follow-up events; those are delivered by the
// next drain.
func (b *Bus[E]) Drain(consumer string, fn func(E)) int {
	if b == nil {
		return 0
	}
	b.claim(consumer, "Drain")
	b.mu.Lock()
	events := b.drainLocked(nil)
	b.mu.Unlock()
	if fn != nil {
		for _, event := range events {
			fn(event)
		}
	}
	return len(events)
}

// Len reports the number of queued events.
func (b *Bus[E]) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity reports the TrySend bound, zero when unbounded.
func (b *Bus[E]) Capacity() int {
	if b == nil {
		return 0
	}
	return b.capacity
}

// Owner reports the claiming consumer, empty until the first read.
func (b *Bus[E]) Owner() string {
	if b == nil {
		return ""
	}
	if owner := b.owner.Load(); owner != nil {
		return *owner
	}
	return ""
}

// Violations reports how many reads were made by a non-owning consumer.
func (b *Bus[E]) Violations() uint64 {
	if b == nil {
		return 0
	}
	return b.violations.Load()
}

// Consumer returns a view that reads as id.
func (b *Bus[E]) Consumer(id string) *Consumer[E] {
	return &Consumer[E]{bus: b, id: id}
}

func (b *Bus[E]) claim(consumer, operation string) {
	if b.owner.CompareAndSwap(nil, &consumer) {
		return
	}
	owner := b.owner.Load()
	if *owner == consumer {
		return
	}
	total := b.violations.Add(1)
	if b.metrics != nil {
		b.metrics.Add(violationMetricKey, 1)
	}
	err := &ViolationError{Owner: *owner, Intruder: consumer, Operation: operation}
	if b.onViolation != nil {
		b.onViolation(err, total)
	}
	if assertSingleConsumer {
		panic(err)
	}
}

func (b *Bus[E]) pushLocked(event E) {
	if b.count == len(b.data) {
		b.growLocked()
	}
	tail := (b.head + b.count) % len(b.data)
	b.data[tail] = event
	b.count++
	b.storeOccupancyLocked()
}

func (b *Bus[E]) growLocked() {
	grown := make([]E, len(b.data)*2)
	for i := 0; i < b.count; i++ {
		grown[i] = b.data[(b.head+i)%len(b.data)]
	}
	b.data = grown
	b.head = 0
}

func (b *Bus[E]) drainLocked(dst []E) []E {
	if b.count == 0 {
		return dst
	}
	var zero E
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		dst = append(dst, b.data[idx])
		b.data[idx] = zero
	}
	b.head = 0
	b.count = 0
	b.storeOccupancyLocked()
	return dst
}

func (b *Bus[E]) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(occupancyMetricKey, uint64(b.count))
}

// Consumer binds a consumer identity to a bus. Sends through a consumer
// view are ordinary producer sends.
type Consumer[E any] struct {
	bus *Bus[E]
	id  string
}

// ID reports the bound identity.
func (c *Consumer[E]) ID() string { return c.id }

func (c *Consumer[E]) Send(event E)         { c.bus.Send(event) }
func (c *Consumer[E]) TrySend(event E) bool { return c.bus.TrySend(event) }
func (c *Consumer[E]) Len() int             { return c.bus.Len() }

func (c *Consumer[E]) TryRecv() (E, bool) { return c.bus.TryRecv(c.id) }

func (c *Consumer[E]) DrainInto(dst []E) []E { return c.bus.DrainInto(c.id, dst) }

func (c *Consumer[E]) Drain(fn func(E)) int { return c.bus.Drain(c.id, fn) }
