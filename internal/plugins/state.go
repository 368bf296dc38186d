package plugins

// State tracks a plugin through its lifecycle.
type State int

const (
	StateScanned State = iota
	StateLoaded
	StateInitialized
	StateStarted
	StateRunning
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateScanned:
		return "scanned"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}
