package orchestrator

// State is the detection loop lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateWarmup
	StateRunning
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateWarmup:
		return "warmup"
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
