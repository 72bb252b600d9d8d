package placement

// State is the phase of a single placement attempt.
type State int

const (
	StateRequested State = iota
	StateLoading
	StateValidating
	StateCommitted
	StateRolledBack
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "REQUESTED"
	case StateLoading:
		return "LOADING"
	case StateValidating:
		return "VALIDATING"
	case StateCommitted:
		return "COMMITTED"
	case StateRolledBack:
		return "ROLLED_BACK"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateFailed
}
