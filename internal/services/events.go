package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"neocore/pkg/pluginapi"
)

var (
	ErrEmptyTopic  = errors.New("services: event topic is empty")
	ErrNilSink     = errors.New("services: event sink is nil")
	ErrEventsFull  = errors.New("services: event queue is full")
	ErrHubShutDown = errors.New("services: event hub is shut down")
)

const defaultEventCapacity = 4096

// HostEvent is a topic-addressed payload emitted through the host.
type HostEvent struct {
	Topic   string
	Payload []byte
}

// PanicHandler observes a sink that panicked during delivery.
type PanicHandler func(topic string, recovered any)

// Hub queues events from any goroutine and delivers them to every
// subscriber when the engine pumps it.
type Hub struct {
	mu       sync.Mutex
	queue    []HostEvent
	sinks    []pluginapi.EventSink
	capacity int
	closed   bool
	onPanic  PanicHandler

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub constructs a hub holding at most capacity undelivered events.
func NewHub(capacity int, onPanic PanicHandler) *Hub {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &Hub{capacity: capacity, onPanic: onPanic}
}

// Emit queues an event. The payload is copied.
func (h *Hub) Emit(topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubShutDown
	}
	if len(h.queue) >= h.capacity {
		h.dropped.Add(1)
		return fmt.Errorf("%w: %s", ErrEventsFull, topic)
	}
	h.queue = append(h.queue, HostEvent{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Subscribe adds a sink that receives every event pumped from now on.
func (h *Hub) Subscribe(sink pluginapi.EventSink) error {
	if sink == nil {
		return ErrNilSink
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubShutDown
	}
	h.sinks = append(h.sinks, sink)
	return nil
}

// Pump delivers queued events in emit order to sinks in subscription order.
// Events emitted by a sink during delivery wait for the next pump.
func (h *Hub) Pump() int {
	h.mu.Lock()
	events := h.queue
	h.queue = nil
	sinks := append([]pluginapi.EventSink(nil), h.sinks...)
	h.mu.Unlock()

	for _, ev := range events {
		for _, sink := range sinks {
			h.deliver(sink, ev)
		}
	}
	h.delivered.Add(uint64(len(events)))
	return len(events)
}

func (h *Hub) deliver(sink pluginapi.EventSink, ev HostEvent) {
	defer func() {
		if r := recover(); r != nil && h.onPanic != nil {
			h.onPanic(ev.Topic, r)
		}
	}()
	sink.OnEvent(ev.Topic, ev.Payload)
}

func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

// Delivered and Dropped report lifetime totals.
func (h *Hub) Delivered() uint64 { return h.delivered.Load() }
func (h *Hub) Dropped() uint64   { return h.dropped.Load() }

// Close drops pending events and subscribers. Later emits fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.queue = nil
	h.sinks = nil
}
