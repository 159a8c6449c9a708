package manager

import "ovchat/internal/session"

// State represents the lifecycle state of the manager.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State    State
	Settings session.Settings
	// Loaded describes the open pipeline; nil when none is open.
	Loaded *Loaded
	Err    string
}

// Loaded describes the model behind the open pipeline.
type Loaded struct {
	Dir      string
	Source   string
	Device   string
	Settings session.Settings
	SizeMB   float64
	// Command is the conversion command line when the converter ran.
	Command  string
}
