package workflow

// Trigger is an action that moves an expense between states
type Trigger string

const (
	// TriggerSubmit is fired by the submitter on a draft
	TriggerSubmit Trigger = "SUBMIT"

	// TriggerRoute is fired once approval records have been fanned out
	TriggerRoute Trigger = "ROUTE"

	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
