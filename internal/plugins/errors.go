package plugins

import (
	"errors"
	"fmt"
)

// ErrPluginLoad matches every skipped candidate.
var ErrPluginLoad = errors.New("plugins: load failed")

// ErrMissingEntry indicates neither entry symbol resolved.
var ErrMissingEntry = errors.New("plugins: missing entry symbol")

// Stage names the step at which a candidate was rejected.
type Stage string

const (
	StageOpen      Stage = "open"
	StageSymbol    Stage = "symbol"
	StageCreate    Stage = "create"
	StageDuplicate Stage = "duplicate"
	StageInit      Stage = "init"
)

// LoadError describes a skipped candidate. It is never fatal to a scan.
type LoadError struct {
	Path     string
	PluginID string
	Stage    Stage
	Err      error
}

func (e *LoadError) Error() string {
	if e.PluginID != "" {
		return fmt.Sprintf("plugins: %s %q (%s): %v", e.Stage, e.PluginID, e.Path, e.Err)
	}
	return fmt.Sprintf("plugins: %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool {
	return target == ErrPluginLoad
}

// PhaseError attributes a lifecycle failure to a plugin.
type PhaseError struct {
	PluginID string
	Phase    string
	Err      error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("plugins: %s failed for %q: %v", e.Phase, e.PluginID, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
