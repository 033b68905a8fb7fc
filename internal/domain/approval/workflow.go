package approval

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkflowDefinition is a tenant-scoped approval configuration.
// Lower Priority values take precedence when selecting a workflow.
type WorkflowDefinition struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"is_active"`
	Approvers   []string  `json:"approvers"`
	Rules       Rule      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EffectiveRule returns the configured rule, or unanimous when none is set
func (w *WorkflowDefinition) EffectiveRule() Rule {
	if w == nil || w.Rules == nil {
		return UnanimousRule{}
	}
	return w.Rules
}

// Validate checks the configuration invariants of a definition
func (w *WorkflowDefinition) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if err := ValidateApprovers(w.Approvers); err != nil {
		return err
	}
	if w.Rules != nil {
		if err := w.Rules.validate(w.Approvers); err != nil {
			return err
		}
	}
	return nil
}

// ValidateApprovers requires a non-empty list of unique, non-blank ids
func ValidateApprovers(approvers []string) error {
	if len(approvers) == 0 {
		return NewValidationError("approvers", "must not be empty")
	}

	seen := make(map[string]bool, len(approvers))
	for i, a := range approvers {
		if strings.TrimSpace(a) == "" {
			return NewValidationError("approvers", fmt.Sprintf("entry %d is blank", i))
		}
		if seen[a] {
			return NewValidationError("approvers", fmt.Sprintf("%q is listed twice", a))
		}
		seen[a] = true
	}
	return nil
}

// HasApprover reports whether the user is one of the workflow approvers
func (w *WorkflowDefinition) HasApprover(userID string) bool {
	for _, a := range w.Approvers {
		if a == userID {
			return true
		}
	}
	return false
}

type workflowJSON struct {
	ID          int64         `json:"id"`
	CompanyID   int64         `json:"company_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Priority    int           `json:"priority"`
	IsActive    bool          `json:"is_active"`
	Approvers   []string      `json:"approvers"`
	Rules       *RuleDocument `json:"rules"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// MarshalJSON encodes Rules as a tagged document
func (w WorkflowDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowJSON{
		ID:          w.ID,
		CompanyID:   w.CompanyID,
		Name:        w.Name,
		Description: w.Description,
		Priority:    w.Priority,
		IsActive:    w.IsActive,
		Approvers:   w.Approvers,
		Rules:       DocumentFor(w.Rules),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	})
}

// UnmarshalJSON decodes the tagged rules document into a Rule
func (w *WorkflowDefinition) UnmarshalJSON(data []byte) error {
	var raw workflowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var rule Rule
	if raw.Rules != nil {
		r, err := raw.Rules.Rule()
		if err != nil {
			return err
		}
		rule = r
	}

	*w = WorkflowDefinition{
		ID:          raw.ID,
		CompanyID:   raw.CompanyID,
		Name:        raw.Name,
		Description: raw.Description,
		Priority:    raw.Priority,
		IsActive:    raw.IsActive,
		Approvers:   raw.Approvers,
		Rules:       rule,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}
	return nil
}
