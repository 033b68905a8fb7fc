package workflow

// State is an expense status in the approval lifecycle
type State string

const (
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
)

var validStates = map[State]bool{
	StateDraft:     true,
	StateSubmitted: true,
	StatePending:   true,
	StateApproved:  true,
	StateRejected:  true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// IsTerminal returns true once approval processing can no longer change the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known expense status
func (s State) IsValid() bool {
	return validStates[s]
}
