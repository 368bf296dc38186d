package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrExitRequested is returned by Step once the exit flag is set.
	ErrExitRequested = errors.New("engine: exit requested")
	// ErrNotStarted indicates Step was called before Start.
	ErrNotStarted = errors.New("engine: not started")
	// ErrAlreadyStarted indicates Register or Start was called after Start.
	ErrAlreadyStarted = errors.New("engine: already started")
	// ErrShutDown indicates the engine was used after Shutdown.
	ErrShutDown = errors.New("engine: shut down")
	// ErrDuplicateModule indicates two modules share an id.
	ErrDuplicateModule = errors.New("engine: duplicate module id")
	// ErrInvalidModule indicates a nil module or an empty id.
	ErrInvalidModule = errors.New("engine: invalid module")
)

// Phase names a lifecycle call.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseStart         Phase = "start"
	PhaseFixedUpdate   Phase = "fixed_update"
	PhaseUpdate        Phase = "update"
	PhaseRender        Phase = "render"
	PhaseExternalEvent Phase = "external_event"
	PhaseShutdown      Phase = "shutdown"
)

// PhaseError attributes a hook failure to a module.
type PhaseError struct {
	ModuleID string
	Phase    Phase
	Err      error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("engine: module %q %s: %v", e.ModuleID, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a hook.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
