package approval

// Verdict is the outcome of evaluating all records of an expense
type Verdict string

const (
	VerdictUnchanged Verdict = "unchanged"
	VerdictApproved  Verdict = "approved"
	VerdictRejected  Verdict = "rejected"
)

// String returns the string representation of the verdict
func (v Verdict) String() string {
	return string(v)
}

// IsFinal returns true for approved and rejected
func (v Verdict) IsFinal() bool {
	return v == VerdictApproved || v == VerdictRejected
}

// Tally counts decisions across the records of one expense
type Tally struct {
	Approved   int             `json:"approved"`
	Rejected   int             `json:"rejected"`
	Pending    int             `json:"pending"`
	Total      int             `json:"total"`
	approvedBy map[string]bool
}

// NewTally counts the records
func NewTally(records []*Record) Tally {
	t := Tally{
		Total:      len(records),
		approvedBy: make(map[string]bool),
	}
	for _, r := range records {
		switch r.Status {
		case RecordApproved:
			t.Approved++
			t.approvedBy[r.ApproverID] = true
		case RecordRejected:
			t.Rejected++
		default:
			t.Pending++
		}
	}
	return t
}

// ApprovedByAny reports whether any of the given approvers has approved
func (t Tally) ApprovedByAny(approvers []string) bool {
	for _, a := range approvers {
		if t.approvedBy[a] {
			return true
		}
	}
	return false
}

// Assessment explains how a verdict was reached
type Assessment struct {
	Rule              RuleKind `json:"rule"`
	Tally             Tally    `json:"tally"`
	RequiredApprovals int      `json:"required_approvals"`
	OverrideSatisfied bool     `json:"override_satisfied"`
	Verdict           Verdict  `json:"verdict"`
}

// Evaluate returns the verdict for the records under the workflow's rule.
// A nil workflow evaluates as unanimous. Approval is checked before
// rejection, so an approval condition met in the same pass wins.
func Evaluate(records []*Record, wf *WorkflowDefinition) Verdict {
	rule := wf.EffectiveRule()
	tally := NewTally(records)

	if rule.satisfied(tally) {
		return VerdictApproved
	}
	if tally.Rejected > 0 {
		return VerdictRejected
	}
	return VerdictUnchanged
}

// Assess evaluates the records and reports the intermediate figures
func Assess(records []*Record, wf *WorkflowDefinition) Assessment {
	rule := wf.EffectiveRule()
	tally := NewTally(records)

	a := Assessment{
		Rule:    rule.Kind(),
		Tally:   tally,
		Verdict: Evaluate(records, wf),
	}

	switch r := rule.(type) {
	case PercentageRule:
		a.RequiredApprovals = RequiredApprovals(r.Percentage, tally.Total)
	case OverrideRule:
		a.OverrideSatisfied = tally.ApprovedByAny(r.OverrideApprovers)
	case HybridRule:
		a.RequiredApprovals = RequiredApprovals(r.Percentage, tally.Total)
		a.OverrideSatisfied = tally.ApprovedByAny(r.OverrideApprovers)
	case UnanimousRule:
		a.RequiredApprovals = tally.Total
	}
	return a
}
