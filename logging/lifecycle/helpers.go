package lifecycle

import (
	"context"

	"neocore/logging"
)

const (
	// EventModuleRegistered is emitted after a module's init hook succeeds.
	EventModuleRegistered logging.EventType = "lifecycle.module_registered"
	// EventModuleStarted is emitted after a module's start hook succeeds.
	EventModuleStarted logging.EventType = "lifecycle.module_started"
	// EventModuleShutdownFailed is emitted when a shutdown hook reports an error.
	EventModuleShutdownFailed logging.EventType = "lifecycle.module_shutdown_failed"
	// EventEngineStarted is emitted once the host finished construction.
	EventEngineStarted logging.EventType = "lifecycle.engine_started"
	// EventEngineShutdown is emitted once every shutdown hook has run.
	EventEngineShutdown logging.EventType = "lifecycle.engine_shutdown"
	// EventExitRequested is emitted the first time the exit flag is observed.
	EventExitRequested logging.EventType = "lifecycle.exit_requested"
)

// ModulePayload identifies a module by id and registration index.
type ModulePayload struct {
	Index int `json:"index"`
}

// ShutdownFailedPayload carries the error text of a failed hook.
type ShutdownFailedPayload struct {
	Error string `json:"error"`
}

// EngineStartedPayload counts what the host started with.
type EngineStartedPayload struct {
	Modules  int    `json:"modules"`
	Plugins  int    `json:"plugins"`
	Instance string `json:"instance,omitempty"`
}

// EngineShutdownPayload summarises a shutdown pass.
type EngineShutdownPayload struct {
	Modules  int `json:"modules"`
	Plugins  int `json:"plugins"`
	Failures int `json:"failures"`
}

// ExitRequestedPayload records the frame counter when the exit was observed.
type ExitRequestedPayload struct {
	FrameIndex uint64 `json:"frameIndex"`
}

// ModuleRegistered publishes a module registration event.
func ModuleRegistered(ctx context.Context, pub logging.Publisher, moduleID string, payload ModulePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventModuleRegistered,
		Source:   logging.Module(moduleID),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// ModuleStarted publishes a module start event.
func ModuleStarted(ctx context.Context, pub logging.Publisher, moduleID string, payload ModulePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventModuleStarted,
		Source:   logging.Module(moduleID),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// ModuleShutdownFailed publishes a failed shutdown hook.
func ModuleShutdownFailed(ctx context.Context, pub logging.Publisher, frame uint64, moduleID string, err error) {
	if pub == nil || err == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventModuleShutdownFailed,
		Frame:    frame,
		Source:   logging.Module(moduleID),
		Severity: logging.SeverityError,
		Category: logging.CategoryLifecycle,
		Message:  err.Error(),
		Payload:  ShutdownFailedPayload{Error: err.Error()},
	})
}

// EngineStarted publishes the end of host construction.
func EngineStarted(ctx context.Context, pub logging.Publisher, payload EngineStartedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEngineStarted,
		Source:   logging.Engine(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// EngineShutdown publishes the end of a shutdown pass.
func EngineShutdown(ctx context.Context, pub logging.Publisher, frame uint64, payload EngineShutdownPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if payload.Failures > 0 {
		severity = logging.SeverityWarn
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEngineShutdown,
		Frame:    frame,
		Source:   logging.Engine(),
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// ExitRequested publishes the cooperative stop signal.
func ExitRequested(ctx context.Context, pub logging.Publisher, frame uint64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventExitRequested,
		Frame:    frame,
		Source:   logging.Engine(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  ExitRequestedPayload{FrameIndex: frame},
	})
}
