package console

import (
	"neocore/internal/engine"
	"neocore/internal/resources"
)

// ModuleID is the engine module id of the console pump.
const ModuleID = "console"

const defaultPerFrame = 8

// Module registers the command service and runs queued lines on the engine
// goroutine, a bounded number per frame.
type Module[E any] struct {
	console  *Console
	queue    *Queue
	perFrame int
}

func NewModule[E any](c *Console, q *Queue, perFrame int) *Module[E] {
	if perFrame <= 0 {
		perFrame = defaultPerFrame
	}
	return &Module[E]{console: c, queue: q, perFrame: perFrame}
}

func (m *Module[E]) ID() string { return ModuleID }

func (m *Module[E]) Init(ctx *engine.Context[E]) error {
	if err := ctx.Services().Host.Services().Register(NewService(m.console)); err != nil {
		return err
	}
	resources.Insert(ctx.Resources(), m.console)
	return nil
}

func (m *Module[E]) Update(ctx *engine.Context[E]) error {
	if m.queue != nil {
		m.queue.Pump(m.perFrame, m.console.Exec)
	}
	if m.console.TakeExitRequested() {
		ctx.RequestExit()
	}
	return nil
}

func (m *Module[E]) Shutdown(ctx *engine.Context[E]) error {
	if m.queue != nil {
		m.queue.Close()
	}
	resources.Remove[*Console](ctx.Resources())
	ctx.Services().Host.Services().Unregister(CommandServiceID)
	return nil
}
