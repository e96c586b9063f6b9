package engine

import "fmt"

// Phase is a stage of the search pipeline.
type Phase int

const (
	PhaseScope Phase = iota + 1
	PhaseMatch
	PhaseBackfill
	PhaseDedup
	PhasePromote
	PhaseFilter
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseScope:    "scope",
	PhaseMatch:    "match",
	PhaseBackfill: "backfill",
	PhaseDedup:    "dedup",
	PhasePromote:  "promote",
	PhaseFilter:   "filter",
	PhaseDone:     "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is the lifecycle state of a task.
type State int

const (
	StatePending State = iota + 1
	StateRunning
	StateDone
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateRunning:   "running",
	StateDone:      "done",
	StateFailed:    "failed",
	StateCancelled: "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Finished reports whether s is a terminal state.
func (s State) Finished() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}
