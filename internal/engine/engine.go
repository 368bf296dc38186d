// Package engine drives in-process modules and loaded plugins through a
// fixed-timestep frame loop. The platform calls Step once per iteration of
// its own loop; the engine never owns a goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"neocore/internal/bus"
	"neocore/internal/resources"
	"neocore/internal/services"
	"neocore/internal/telemetry"
	"neocore/logging"
	buslog "neocore/logging/bus"
	"neocore/logging/lifecycle"
	schedulerlog "neocore/logging/scheduler"
)

const (
	DefaultFixedDT         = time.Second / 60
	DefaultMaxCatchupSteps = 8

	framesMetricKey     = "engine_frames_total"
	fixedStepsMetricKey = "engine_fixed_steps_total"
	clampedMetricKey    = "engine_catchup_clamped_total"
	overrunMetricKey    = "engine_frame_budget_overrun_total"
	stepDurationKey     = "engine_step_duration_us"
)

// Options configures an engine. Zero values select defaults.
type Options[E any] struct {
	FixedDT         time.Duration
	MaxCatchupSteps int
	// FrameBudget enables an overrun warning when a step takes longer.
	FrameBudget time.Duration
	// TimerBudget caps scheduler tasks run per step.
	TimerBudget int

	Clock     logging.Clock
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Host      *services.HostContext

	// Bus is created with BusCapacity when nil.
	Bus         *bus.Bus[E]
	BusCapacity int

	Resources      *resources.Registry
	ModuleSettings map[string]yaml.Node
}

// Engine is the composition root of the module host, the plugin host, the
// typed registry, the command bus and the timer scheduler.
type Engine[E any] struct {
	ctx             context.Context
	services        Services
	resources       *resources.Registry
	bus             *bus.Bus[E]
	scheduler       *Scheduler
	host            *services.HostContext
	plugins         PluginHost
	settings        map[string]yaml.Node
	fixedDT         time.Duration
	maxCatchupSteps int
	frameBudget     time.Duration

	modules []*moduleEntry[E]
	ids     map[string]struct{}

	started    bool
	shutDown   bool
	exitLogged bool
	last       time.Time
	acc        time.Duration
	frameIndex uint64
	lastFrame  Frame
}

// New constructs an engine.
func New[E any](opts Options[E]) *Engine[E] {
	clock := opts.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(nil)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	host := opts.Host
	if host == nil {
		host = services.NewHostContext(services.HostOptions{Clock: clock})
	}
	fixedDT := opts.FixedDT
	if fixedDT <= 0 {
		fixedDT = DefaultFixedDT
	}
	maxCatchup := opts.MaxCatchupSteps
	if maxCatchup <= 0 {
		maxCatchup = DefaultMaxCatchupSteps
	}
	registry := opts.Resources
	if registry == nil {
		registry = resources.New()
	}

	e := &Engine[E]{
		ctx: context.Background(),
		services: Services{
			Publisher: publisher,
			Logger:    logger,
			Metrics:   metrics,
			Clock:     clock,
			Host:      host,
		},
		resources:       registry,
		host:            host,
		settings:        opts.ModuleSettings,
		fixedDT:         fixedDT,
		maxCatchupSteps: maxCatchup,
		frameBudget:     opts.FrameBudget,
		ids:             make(map[string]struct{}),
	}
	e.bus = opts.Bus
	if e.bus == nil {
		e.bus = bus.New[E](bus.Options{
			Capacity:    opts.BusCapacity,
			Metrics:     metrics,
			OnViolation: e.reportViolation,
		})
	}
	e.scheduler = NewScheduler(opts.TimerBudget, e.reportTaskPanic)
	return e
}

// SetPlugins attaches the plugin host driven after the modules in every
// phase. It must be called before Start.
func (e *Engine[E]) SetPlugins(plugins PluginHost) error {
	if e.started {
		return ErrAlreadyStarted
	}
	e.plugins = plugins
	return nil
}

// Register adds a module and runs its Init hook. A module whose Init fails
// is not added.
func (e *Engine[E]) Register(m Module[E]) error {
	if e.shutDown {
		return ErrShutDown
	}
	if e.started {
		return ErrAlreadyStarted
	}
	if m == nil || m.ID() == "" {
		return ErrInvalidModule
	}
	id := m.ID()
	if _, exists := e.ids[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, id)
	}
	entry := newModuleEntry[E](m, len(e.modules))
	entry.ctx = e.newContext(id)
	if init, ok := m.(Initializer[E]); ok {
		if err := e.call(entry, PhaseInit, func() error { return init.Init(entry.ctx) }); err != nil {
			return err
		}
	}
	e.modules = append(e.modules, entry)
	e.ids[id] = struct{}{}
	lifecycle.ModuleRegistered(e.ctx, e.services.Publisher, id, lifecycle.ModulePayload{Index: entry.index})
	return nil
}

// Start runs every module's Start hook in registration order, then starts
// the plugins. A failure is fatal to construction.
func (e *Engine[E]) Start() error {
	if e.shutDown {
		return ErrShutDown
	}
	if e.started {
		return ErrAlreadyStarted
	}
	for _, entry := range e.modules {
		if entry.start == nil {
			continue
		}
		if err := e.call(entry, PhaseStart, func() error { return entry.start.Start(entry.ctx) }); err != nil {
			return err
		}
		lifecycle.ModuleStarted(e.ctx, e.services.Publisher, entry.id, lifecycle.ModulePayload{Index: entry.index})
	}
	if e.plugins != nil {
		if err := e.plugins.StartAll(); err != nil {
			return err
		}
	}
	e.started = true
	e.last = e.services.Clock.Now()
	return nil
}

// Step advances one frame: zero or more fixed passes, then one Update and
// one Render, then timers and host events.
func (e *Engine[E]) Step() (Frame, error) {
	if e.host.ExitRequested() {
		e.noteExit()
		return Frame{}, ErrExitRequested
	}
	if e.shutDown {
		return Frame{}, ErrShutDown
	}
	if !e.started {
		return Frame{}, ErrNotStarted
	}

	clock := e.services.Clock
	now := clock.Now()
	dt := now.Sub(e.last)
	if dt < 0 {
		dt = 0
	}
	e.last = now

	e.acc += dt
	if maxAcc := e.fixedDT * time.Duration(e.maxCatchupSteps); e.acc > maxAcc {
		dropped := e.acc - maxAcc
		e.acc = maxAcc
		e.services.Metrics.Add(clampedMetricKey, 1)
		schedulerlog.CatchupClamped(e.ctx, e.services.Publisher, e.frameIndex, schedulerlog.CatchupClampedPayload{
			ElapsedMillis:   float64(dt) / float64(time.Millisecond),
			DroppedMillis:   float64(dropped) / float64(time.Millisecond),
			MaxCatchupSteps: e.maxCatchupSteps,
		})
	}

	var steps uint32
	fixedSeconds := e.fixedDT.Seconds()
	for e.acc >= e.fixedDT {
		e.acc -= e.fixedDT
		steps++
		frame := newFrame(e.frameIndex, dt, e.fixedDT, e.acc, steps)
		for _, entry := range e.modules {
			if entry.fixed == nil {
				continue
			}
			entry.ctx.frame = frame
			if err := e.call(entry, PhaseFixedUpdate, func() error { return entry.fixed.FixedUpdate(entry.ctx) }); err != nil {
				return frame, err
			}
		}
		if e.plugins != nil {
			if err := e.plugins.FixedUpdateAll(fixedSeconds); err != nil {
				return frame, err
			}
		}
	}
	e.services.Metrics.Add(fixedStepsMetricKey, uint64(steps))

	frame := newFrame(e.frameIndex, dt, e.fixedDT, e.acc, steps)
	for _, entry := range e.modules {
		if entry.update == nil {
			continue
		}
		entry.ctx.frame = frame
		if err := e.call(entry, PhaseUpdate, func() error { return entry.update.Update(entry.ctx) }); err != nil {
			return frame, err
		}
	}
	if e.plugins != nil {
		if err := e.plugins.UpdateAll(frame.DT); err != nil {
			return frame, err
		}
	}
	for _, entry := range e.modules {
		if entry.render == nil {
			continue
		}
		entry.ctx.frame = frame
		if err := e.call(entry, PhaseRender, func() error { return entry.render.Render(entry.ctx) }); err != nil {
			return frame, err
		}
	}
	if e.plugins != nil {
		if err := e.plugins.RenderAll(frame.DT); err != nil {
			return frame, err
		}
	}

	e.scheduler.Tick(dt)
	e.host.Events().Pump()

	e.frameIndex++
	e.lastFrame = frame
	e.services.Metrics.Add(framesMetricKey, 1)
	e.checkBudget(frame, clock.Now().Sub(now))
	if e.host.ExitRequested() {
		e.noteExit()
	}
	return frame, nil
}

// DispatchExternalEvent hands an opaque platform event to every module in
// registration order. The first failure stops dispatch.
func (e *Engine[E]) DispatchExternalEvent(ev any) error {
	if e.shutDown {
		return ErrShutDown
	}
	for _, entry := range e.modules {
		if entry.external == nil {
			continue
		}
		entry.ctx.frame = e.lastFrame
		if err := e.call(entry, PhaseExternalEvent, func() error { return entry.external.OnExternalEvent(entry.ctx, ev) }); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops plugins in reverse load order, then modules in reverse
// registration order. Every hook runs; failures are logged and joined.
func (e *Engine[E]) Shutdown() error {
	if e.shutDown {
		return nil
	}
	e.shutDown = true

	var errs []error
	pluginCount := 0
	if e.plugins != nil {
		pluginCount = e.plugins.Len()
		if err := e.plugins.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(e.modules) - 1; i >= 0; i-- {
		entry := e.modules[i]
		if entry.shutdown == nil {
			continue
		}
		entry.ctx.frame = e.lastFrame
		if err := e.call(entry, PhaseShutdown, func() error { return entry.shutdown.Shutdown(entry.ctx) }); err != nil {
			lifecycle.ModuleShutdownFailed(e.ctx, e.services.Publisher, e.frameIndex, entry.id, err)
			e.services.Logger.Printf("[engine] module %s shutdown failed: %v", entry.id, err)
			errs = append(errs, err)
		}
	}
	e.host.Events().Close()
	lifecycle.EngineShutdown(e.ctx, e.services.Publisher, e.frameIndex, lifecycle.EngineShutdownPayload{
		Modules:  len(e.modules),
		Plugins:  pluginCount,
		Failures: len(errs),
	})
	return errors.Join(errs...)
}

// RequestExit sets the exit flag. It is safe from any goroutine.
func (e *Engine[E]) RequestExit() { e.host.RequestExit() }

func (e *Engine[E]) ExitRequested() bool { return e.host.ExitRequested() }

func (e *Engine[E]) Resources() *resources.Registry { return e.resources }

func (e *Engine[E]) Bus() *bus.Bus[E] { return e.bus }

func (e *Engine[E]) Host() *services.HostContext { return e.host }

func (e *Engine[E]) Scheduler() *Scheduler { return e.scheduler }

// FrameIndex reports how many steps have completed.
func (e *Engine[E]) FrameIndex() uint64 { return e.frameIndex }

// LastFrame reports the frame produced by the last successful step.
func (e *Engine[E]) LastFrame() Frame { return e.lastFrame }

// ModuleIDs lists modules in registration order.
func (e *Engine[E]) ModuleIDs() []string {
	ids := make([]string, len(e.modules))
	for i, entry := range e.modules {
		ids[i] = entry.id
	}
	return ids
}

func (e *Engine[E]) newContext(id string) *Context[E] {
	var settings Settings
	if node, ok := e.settings[id]; ok {
		settings = NewSettings(&node)
	}
	return &Context[E]{
		engine:   e,
		moduleID: id,
		consumer: e.bus.Consumer(id),
		settings: settings,
	}
}

func (e *Engine[E]) call(entry *moduleEntry[E], phase Phase, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if violation, ok := r.(*bus.ViolationError); ok {
				panic(violation)
			}
			err = &PhaseError{ModuleID: entry.id, Phase: phase, Err: &PanicError{Value: r}}
		}
	}()
	if err := fn(); err != nil {
		return &PhaseError{ModuleID: entry.id, Phase: phase, Err: err}
	}
	return nil
}

func (e *Engine[E]) checkBudget(frame Frame, took time.Duration) {
	e.services.Metrics.Store(stepDurationKey, uint64(took/time.Microsecond))
	if e.frameBudget <= 0 || took <= e.frameBudget {
		return
	}
	e.services.Metrics.Add(overrunMetricKey, 1)
	schedulerlog.FrameBudgetOverrun(e.ctx, e.services.Publisher, frame.Index, schedulerlog.FrameBudgetOverrunPayload{
		DurationMillis: float64(took) / float64(time.Millisecond),
		BudgetMillis:   float64(e.frameBudget) / float64(time.Millisecond),
		Ratio:          float64(took) / float64(e.frameBudget),
	})
}

func (e *Engine[E]) noteExit() {
	if e.exitLogged {
		return
	}
	e.exitLogged = true
	lifecycle.ExitRequested(e.ctx, e.services.Publisher, e.frameIndex)
}

func (e *Engine[E]) reportViolation(err *bus.ViolationError, total uint64) {
	e.services.Logger.Printf("[engine] %v", err)
	buslog.ConsumerViolation(e.ctx, e.services.Publisher, buslog.ConsumerViolationPayload{
		Owner:     err.Owner,
		Intruder:  err.Intruder,
		Operation: err.Operation,
		Total:     total,
	})
}

func (e *Engine[E]) reportTaskPanic(id TaskID, recovered any) {
	e.services.Logger.Printf("[engine] timer task %d panicked: %v", id, recovered)
	schedulerlog.TaskPanicked(e.ctx, e.services.Publisher, e.frameIndex, schedulerlog.TaskPanickedPayload{
		TaskID: uint64(id),
		Panic:  fmt.Sprint(recovered),
	})
}
