package runner

// State is a step of the run state machine:
//
//	Idle -> Running -> (Exhausted | BudgetReached | SourceFailed | Cancelled) -> Extracting -> Exported -> Done
type State int

const (
	Idle State = iota
	Running
	Exhausted
	BudgetReached
	SourceFailed
	Cancelled
	Extracting
	Exported
	Done
)

var stateNames = [...]string{
	Idle:          "idle",
	Running:       "running",
	Exhausted:     "exhausted",
	BudgetReached: "budget_reached",
	SourceFailed:  "source_failed",
	Cancelled:     "cancelled",
	Extracting:    "extracting",
	Exported:      "exported",
	Done:          "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StopReason reports whether s is one of the states that end the reading phase.
func (s State) StopReason() bool {
	switch s {
	case Exhausted, BudgetReached, SourceFailed, Cancelled:
		return true
	}
	return false
}

// StateNames lists every state name, used to reset the run_state gauge.
func StateNames() []string {
	names := make([]string, len(stateNames))
	copy(names, stateNames[:])
	return names
}
