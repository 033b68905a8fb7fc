package approval

import (
	"fmt"
)

// RuleKind tags a rule variant
type RuleKind string

const (
	RuleKindPercentage RuleKind = "percentage"
	RuleKindOverride   RuleKind = "override"
	RuleKindHybrid     RuleKind = "hybrid"
	RuleKindUnanimous  RuleKind = "unanimous"
)

// String returns the string representation of the rule kind
func (k RuleKind) String() string {
	return string(k)
}

// Combinator joins the threshold and override conditions of a hybrid rule
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// IsValid returns true for AND and OR
func (c Combinator) IsValid() bool {
	return c == CombinatorAnd || c == CombinatorOr
}

// Rule decides when a set of approver decisions approves an expense.
// The interface is sealed: only the variants in this package implement it.
type Rule interface {
	Kind() RuleKind

	// satisfied reports whether the approval condition holds for the tally
	satisfied(t Tally) bool

	// validate checks the rule against the workflow's approver list
	validate(approvers []string) error
}

// PercentageRule approves once ceil(Percentage% of all records) have approved
type PercentageRule struct {
	Percentage int
}

// OverrideRule approves as soon as any override approver approves
type OverrideRule struct {
	OverrideApprovers []string
}

// HybridRule combines a percentage threshold with override approvers
type HybridRule struct {
	Percentage        int
	OverrideApprovers []string
	Combinator        Combinator
}

// UnanimousRule approves only when every record has approved
type UnanimousRule struct{}

func (PercentageRule) Kind() RuleKind { return RuleKindPercentage }
func (OverrideRule) Kind() RuleKind   { return RuleKindOverride }
func (HybridRule) Kind() RuleKind     { return RuleKindHybrid }
func (UnanimousRule) Kind() RuleKind  { return RuleKindUnanimous }

func (r PercentageRule) satisfied(t Tally) bool {
	return t.Approved >= RequiredApprovals(r.Percentage, t.Total)
}

func (r OverrideRule) satisfied(t Tally) bool {
	return t.ApprovedByAny(r.OverrideApprovers)
}

func (r HybridRule) satisfied(t Tally) bool {
	threshold := t.Approved >= RequiredApprovals(r.Percentage, t.Total)
	override := t.ApprovedByAny(r.OverrideApprovers)
	if r.Combinator == CombinatorAnd {
		return threshold && override
	}
	return threshold || override
}

func (UnanimousRule) satisfied(t Tally) bool {
	return t.Approved == t.Total
}

func (r PercentageRule) validate(_ []string) error {
	return validatePercentage(r.Percentage)
}

func (r OverrideRule) validate(approvers []string) error {
	return validateOverrideApprovers(r.OverrideApprovers, approvers)
}

func (r HybridRule) validate(approvers []string) error {
	if err := validatePercentage(r.Percentage); err != nil {
		return err
	}
	if err := validateOverrideApprovers(r.OverrideApprovers, approvers); err != nil {
		return err
	}
	if !r.Combinator.IsValid() {
		return NewValidationError("rules.combinator", fmt.Sprintf("must be AND or OR, got %q", r.Combinator))
	}
	return nil
}

func (UnanimousRule) validate(_ []string) error {
	return nil
}

// RequiredApprovals returns ceil(percentage/100 * total) using integer arithmetic
func RequiredApprovals(percentage, total int) int {
	if total <= 0 || percentage <= 0 {
		return 0
	}
	return (percentage*total + 99) / 100
}

func validatePercentage(p int) error {
	if p < 1 || p > 100 {
		return NewValidationError("rules.percentage", fmt.Sprintf("must be between 1 and 100, got %d", p))
	}
	return nil
}

func validateOverrideApprovers(overrides, approvers []string) error {
	if len(overrides) == 0 {
		return NewValidationError("rules.override_approvers", "must not be empty")
	}

	known := make(map[string]bool, len(approvers))
	for _, a := range approvers {
		known[a] = true
	}

	for _, o := range overrides {
		if !known[o] {
			return NewValidationError("rules.override_approvers", fmt.Sprintf("%q is not a workflow approver", o))
		}
	}
	return nil
}
