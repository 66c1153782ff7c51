package engine

// State is the engine's state machine position.
type State int

const (
	// StateIdle means no pending commands and nothing in flight.
	StateIdle State = iota
	// StateTransmitting means the queue is being drained.
	StateTransmitting
	// StateRecovering means the replica is unverified and a snapshot is
	// needed before transmission may resume.
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTransmitting:
		return "transmitting"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Status is a consistent view of the engine.
type Status struct {
	State   State
	Pending int
	// Resyncing is true while a snapshot fetch is in flight. A recovery UI
	// keeps its continue control disabled while this holds.
	Resyncing bool
	// LastErr is the most recent *SyncError from a failed send or resync.
	// It is cleared when a resync succeeds.
	LastErr  error
	SyncedAt int64
}

// Settled reports whether the engine has nothing left to do on its own:
// Idle with an empty queue, or Recovering after a failed resync.
func (s Status) Settled() bool {
	switch s.State {
	case StateIdle:
		return s.Pending == 0
	case StateRecovering:
		return !s.Resyncing
	}
	return false
}
