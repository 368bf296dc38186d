package engine

// Module is the only method an in-process module must implement. Lifecycle
// hooks are optional interfaces detected once at registration.
type Module[E any] interface {
	ID() string
}

type Initializer[E any] interface {
	Init(ctx *Context[E]) error
}

type Starter[E any] interface {
	Start(ctx *Context[E]) error
}

type FixedUpdater[E any] interface {
	FixedUpdate(ctx *Context[E]) error
}

type Updater[E any] interface {
	Update(ctx *Context[E]) error
}

type Renderer[E any] interface {
	Render(ctx *Context[E]) error
}

// ExternalEventHandler receives opaque platform events. Implementations
// type-switch on ev and ignore what they do not handle.
type ExternalEventHandler[E any] interface {
	OnExternalEvent(ctx *Context[E], ev any) error
}

type ShutdownHook[E any] interface {
	Shutdown(ctx *Context[E]) error
}

// PluginHost is the plugin side of each phase. Plugins run after every
// in-process module in the same phase.
type PluginHost interface {
	StartAll() error
	FixedUpdateAll(dt float64) error
	UpdateAll(dt float64) error
	RenderAll(dt float64) error
	Shutdown() error
	Len() int
}

type moduleEntry[E any] struct {
	id     string
	index  int
	module Module[E]
	ctx    *Context[E]

	start    Starter[E]
	fixed    FixedUpdater[E]
	update   Updater[E]
	render   Renderer[E]
	external ExternalEventHandler[E]
	shutdown ShutdownHook[E]
}

func newModuleEntry[E any](m Module[E], index int) *moduleEntry[E] {
	entry := &moduleEntry[E]{id: m.ID(), index: index, module: m}
	entry.start, _ = m.(Starter[E])
	entry.fixed, _ = m.(FixedUpdater[E])
	entry.update, _ = m.(Updater[E])
	entry.render, _ = m.(Renderer[E])
	entry.external, _ = m.(ExternalEventHandler[E])
	entry.shutdown, _ = m.(ShutdownHook[E])
	return entry
}
