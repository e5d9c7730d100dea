package tap

// State is the lifecycle state of a Tap.
type State int32

const (
	// StateIdle is the state of a tap that has not been started.
	StateIdle State = iota
	// StateStreaming is the state while Start runs.
	StateStreaming
	// StateCompleted is the state after Start returned nil.
	StateCompleted
	// StateFailed is the state after Start returned an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
