package visual

// State is a position in the per-video attempt state machine.
type State int

const (
	Idle State = iota
	Requesting
	Parsing
	Validating
	Retrying
	Accepted
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Parsing:
		return "parsing"
	case Validating:
		return "validating"
	case Retrying:
		return "retrying"
	case Accepted:
		return "accepted"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool { return s == Accepted || s == Exhausted }

// Transition is delivered to the hook on every state change.
type Transition struct {
	From     State
	To       State
	Attempt  int     // 1-based; 0 before the first request
	Coverage float64 // set when leaving Validating
	Err      error   // cause when entering Retrying or Exhausted
}

// Hook observes transitions. It runs synchronously on the orchestrating goroutine.
type Hook func(Transition)
