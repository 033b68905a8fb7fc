package event

// Type identifies the type of domain event
type Type string

const (
	// TypeExpenseSubmitted announces a newly routed expense to approvers
	TypeExpenseSubmitted Type = "expense.submitted"

	// TypeExpenseStatusUpdated tells the submitter about a final verdict
	TypeExpenseStatusUpdated Type = "expense.status_updated"

	TypeApprovalDecided Type = "approval.decided"
	TypeWorkflowChanged Type = "workflow.changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeExpenseStatusUpdated,
		TypeApprovalDecided,
		TypeWorkflowChanged:
		return true
	default:
		return false
	}
}
