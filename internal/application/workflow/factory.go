package workflow

import (
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// expenseLifecycle is the permitted status graph of an expense:
//
//	draft -SUBMIT-> submitted -ROUTE-> pending -APPROVE|REJECT-> approved|rejected
var expenseLifecycle = buildExpenseLifecycle()

func buildExpenseLifecycle() *domainwf.Definition {
	b := domainwf.NewBuilder()

	b.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	b.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerRoute, domainwf.StatePending)

	b.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// approved and rejected are terminal

	return b.Definition()
}

// NewExpenseMachine returns a lifecycle machine positioned at the expense's status
func NewExpenseMachine(status domainwf.State) (*domainwf.Machine, error) {
	return expenseLifecycle.NewMachine(status)
}
