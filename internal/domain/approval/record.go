package approval

import "time"

// RecordStatus is the decision state of one approver on one expense
type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordApproved RecordStatus = "approved"
	RecordRejected RecordStatus = "rejected"
)

// String returns the string representation of the status
func (s RecordStatus) String() string {
	return string(s)
}

// IsDecision returns true for the two statuses an approver may submit
func (s RecordStatus) IsDecision() bool {
	return s == RecordApproved || s == RecordRejected
}

// Record is one approver's decision slot on one expense.
// A record leaves pending exactly once.
type Record struct {
	ID         int64        `json:"id"`
	ExpenseID  int64        `json:"expense_id"`
	WorkflowID int64        `json:"workflow_id"`
	ApproverID string       `json:"approver_id"`
	Status     RecordStatus `json:"status"`
	Comments   string       `json:"comments,omitempty"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// IsPending returns true while the approver has not decided
func (r *Record) IsPending() bool {
	return r.Status == RecordPending
}

// Decide moves a pending record to the given decision
func (r *Record) Decide(decision RecordStatus, comments string, at time.Time) error {
	if !decision.IsDecision() {
		return NewValidationError("decision", "must be approved or rejected")
	}
	if !r.IsPending() {
		return ErrNotFound
	}
	r.Status = decision
	r.Comments = comments
	r.DecidedAt = &at
	r.UpdatedAt = at
	return nil
}

// NewPendingRecords creates one pending record per workflow approver
func NewPendingRecords(expenseID int64, wf *WorkflowDefinition, now time.Time) []*Record {
	records := make([]*Record, 0, len(wf.Approvers))
	for _, approverID := range wf.Approvers {
		records = append(records, &Record{
			ExpenseID:  expenseID,
			WorkflowID: wf.ID,
			ApproverID: approverID,
			Status:     RecordPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return records
}
