package engine

import (
	"context"

	"gopkg.in/yaml.v3"

	"neocore/internal/bus"
	"neocore/internal/resources"
	"neocore/internal/services"
	"neocore/internal/telemetry"
	"neocore/logging"
)

// Services are the host-wide immutable collaborators every hook can reach.
type Services struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Host      *services.HostContext
}

// Settings is the per-module configuration subtree.
type Settings struct {
	node *yaml.Node
}

// NewSettings wraps a decoded configuration node.
func NewSettings(node *yaml.Node) Settings {
	return Settings{node: node}
}

// Present reports whether the module has a configuration block.
func (s Settings) Present() bool {
	return s.node != nil && s.node.Kind != 0
}

// Decode unmarshals the module's configuration into out. Missing
// configuration leaves out untouched.
func (s Settings) Decode(out any) error {
	if !s.Present() {
		return nil
	}
	return s.node.Decode(out)
}

// Context is the narrow view of the engine passed to every hook. It is only
// valid for the duration of the call and must not be retained.
type Context[E any] struct {
	engine   *Engine[E]
	moduleID string
	consumer *bus.Consumer[E]
	settings Settings
	frame    Frame
}

func (c *Context[E]) ModuleID() string { return c.moduleID }

func (c *Context[E]) Services() Services { return c.engine.services }

func (c *Context[E]) Resources() *resources.Registry { return c.engine.resources }

// Bus returns the command bus bound to this module's consumer identity.
func (c *Context[E]) Bus() *bus.Consumer[E] { return c.consumer }

// Events returns the host event hub.
func (c *Context[E]) Events() *services.Hub { return c.engine.host.Events() }

func (c *Context[E]) Scheduler() *Scheduler { return c.engine.scheduler }

func (c *Context[E]) Settings() Settings { return c.settings }

func (c *Context[E]) Frame() Frame { return c.frame }

// RequestExit asks the engine to stop. The current step completes.
func (c *Context[E]) RequestExit() { c.engine.RequestExit() }

func (c *Context[E]) ExitRequested() bool { return c.engine.ExitRequested() }

// Publish sends a logging event attributed to this module.
func (c *Context[E]) Publish(event logging.Event) {
	if event.Source.ID == "" {
		event.Source = logging.Module(c.moduleID)
	}
	if event.Frame == 0 {
		event.Frame = c.frame.Index
	}
	c.engine.services.Publisher.Publish(context.Background(), event)
}
