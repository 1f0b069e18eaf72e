package workflow

// State represents an activity state in the approval lifecycle
type State string

const (
	StateDraft      State = "draft"
	StateProcessing State = "processing"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateCancelled  State = "cancelled"
	StateAborted    State = "aborted"
)

var validStates = map[State]bool{
	StateDraft:      true,
	StateProcessing: true,
	StateApproved:   true,
	StateRejected:   true,
	StateCancelled:  true,
	StateAborted:    true,
}

// Terminal states end an activity instance. Relaunch is modeled outside the
// machine because it produces a new instance rather than a transition.
var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid activity state
func (s State) IsValid() bool {
	return validStates[s]
}
