// Package pluginapi is the only package a neocore plugin imports. It defines
// the entry symbol contract, the plugin module interface, and the flat table
// of host callbacks a plugin receives at Init.
//
// A plugin is a Go package main built with -buildmode=plugin that exports a
// variable named EntrySymbol of type func() RootV1:
//
//	var NeocorePluginRootV1 = func() pluginapi.RootV1 {
//		return pluginapi.RootV1{Create: func() pluginapi.Module { return &hello{} }}
//	}
package pluginapi

// ContractVersion is embedded in both entry symbol names.
const ContractVersion = 1

const (
	// EntrySymbol is looked up first.
	EntrySymbol = "NeocorePluginRootV1"
	// LegacyEntrySymbol is accepted when EntrySymbol is absent.
	LegacyEntrySymbol = "NeocorePluginV1"
)

// Entry is the type of the exported entry symbol value.
type Entry = func() RootV1

// RootV1 is the factory table a plugin exports.
type RootV1 struct {
	Create func() Module
}

// Info identifies a plugin. ID must be unique across a plugin directory.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Module is the lifecycle a plugin implements. Init receives the host table
// by value; a plugin may keep it for its lifetime.
type Module interface {
	Info() Info
	Init(host HostAPIV1) error
	Start() error
	FixedUpdate(dt float64) error
	Update(dt float64) error
	Render(dt float64) error
	Shutdown()
}

// Base provides no-op lifecycle methods for plugins that only need a few.
type Base struct{}

func (Base) Init(HostAPIV1) error      { return nil }
func (Base) Start() error              { return nil }
func (Base) FixedUpdate(float64) error { return nil }
func (Base) Update(float64) error      { return nil }
func (Base) Render(float64) error      { return nil }
func (Base) Shutdown()                 {}

// Service is a string-addressed, self-describing callable. Describe returns
// a JSON document; Call exchanges opaque bytes.
type Service interface {
	ID() string
	Describe() string
	Call(method string, payload []byte) ([]byte, error)
}

// EventSink receives events emitted through the host.
type EventSink interface {
	OnEvent(topic string, payload []byte)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(topic string, payload []byte)

func (f EventSinkFunc) OnEvent(topic string, payload []byte) {
	if f == nil {
		return
	}
	f(topic, payload)
}

// HostAPIV1 is the flat host callback table. Nil fields are tolerated by
// the helper methods below.
type HostAPIV1 struct {
	LogInfo  func(message string)
	LogWarn  func(message string)
	LogError func(message string)

	RegisterService func(service Service) error
	CallService     func(serviceID, method string, payload []byte) ([]byte, error)
	EmitEvent       func(topic string, payload []byte) error
	SubscribeEvents func(sink EventSink) error

	MonotonicTimeNS func() uint64
	RequestExit     func()
}

func (h HostAPIV1) Info(message string) {
	if h.LogInfo != nil {
		h.LogInfo(message)
	}
}

func (h HostAPIV1) Warn(message string) {
	if h.LogWarn != nil {
		h.LogWarn(message)
	}
}

func (h HostAPIV1) Error(message string) {
	if h.LogError != nil {
		h.LogError(message)
	}
}
