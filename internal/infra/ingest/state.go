package ingest

// State represents the ingestion server lifecycle state.
type State int

const (
	StateStopped   State = iota // Not listening
	StateStarting               // Binding the listener
	StateListening              // Accepting requests
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}
