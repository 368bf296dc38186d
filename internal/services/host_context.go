// Package services holds the host-wide state shared between the engine and
// plugins: the service registry, the event hub, the monotonic clock and the
// exit flag. A HostContext is constructed explicitly and passed down; there
// is no package-level instance.
package services

import (
	"sync/atomic"
	"time"

	"neocore/logging"
)

// HostOptions configures a HostContext. Zero values select defaults.
type HostOptions struct {
	Clock         logging.Clock
	EventCapacity int
	OnSinkPanic   PanicHandler
}

type HostContext struct {
	services *Registry
	events   *Hub
	clock    logging.Clock
	origin   time.Time
	lastNS   atomic.Uint64
	exit     atomic.Bool
}

// NewHostContext constructs an empty host context.
func NewHostContext(opts HostOptions) *HostContext {
	clock := opts.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return &HostContext{
		services: NewRegistry(),
		events:   NewHub(opts.EventCapacity, opts.OnSinkPanic),
		clock:    clock,
		origin:   clock.Now(),
	}
}

func (h *HostContext) Services() *Registry { return h.services }

func (h *HostContext) Events() *Hub { return h.events }

func (h *HostContext) Clock() logging.Clock { return h.clock }

// MonotonicTimeNS reports nanoseconds since the context was created. The
// value never decreases even if the underlying clock steps backwards.
func (h *HostContext) MonotonicTimeNS() uint64 {
	elapsed := h.clock.Now().Sub(h.origin)
	if elapsed < 0 {
		elapsed = 0
	}
	now := uint64(elapsed)
	for {
		last := h.lastNS.Load()
		if now <= last {
			return last
		}
		if h.lastNS.CompareAndSwap(last, now) {
			return now
		}
	}
}

// RequestExit sets the cooperative exit flag. It is safe from any goroutine.
func (h *HostContext) RequestExit() { h.exit.Store(true) }

func (h *HostContext) ExitRequested() bool { return h.exit.Load() }
