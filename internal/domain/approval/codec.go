package approval

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RuleDocument is the persisted and wire form of a Rule:
//
//	{"type":"hybrid","percentage":50,"override_approvers":["u7"],"combinator":"AND"}
type RuleDocument struct {
	Type              RuleKind   `json:"type"`
	Percentage        int        `json:"percentage,omitempty"`
	OverrideApprovers []string   `json:"override_approvers,omitempty"`
	Combinator        Combinator `json:"combinator,omitempty"`
}

// DocumentFor converts a Rule into its document form. A nil rule yields nil.
func DocumentFor(rule Rule) *RuleDocument {
	switch r := rule.(type) {
	case PercentageRule:
		return &RuleDocument{Type: RuleKindPercentage, Percentage: r.Percentage}
	case OverrideRule:
		return &RuleDocument{Type: RuleKindOverride, OverrideApprovers: r.OverrideApprovers}
	case HybridRule:
		return &RuleDocument{
			Type:              RuleKindHybrid,
			Percentage:        r.Percentage,
			OverrideApprovers: r.OverrideApprovers,
			Combinator:        r.Combinator,
		}
	case UnanimousRule:
		return &RuleDocument{Type: RuleKindUnanimous}
	default:
		return nil
	}
}

// Rule converts the document into its Rule variant
func (d *RuleDocument) Rule() (Rule, error) {
	switch d.Type {
	case RuleKindPercentage:
		return PercentageRule{Percentage: d.Percentage}, nil
	case RuleKindOverride:
		return OverrideRule{OverrideApprovers: d.OverrideApprovers}, nil
	case RuleKindHybrid:
		return HybridRule{
			Percentage:        d.Percentage,
			OverrideApprovers: d.OverrideApprovers,
			Combinator:        d.Combinator,
		}, nil
	case RuleKindUnanimous, "":
		return UnanimousRule{}, nil
	default:
		return nil, NewValidationError("rules.type", fmt.Sprintf("unknown rule type %q", d.Type))
	}
}

// EncodeRule serializes a rule for storage. A nil rule encodes to nil.
func EncodeRule(rule Rule) ([]byte, error) {
	doc := DocumentFor(rule)
	if doc == nil {
		return nil, nil
	}
	return json.Marshal(doc)
}

// DecodeRule parses a stored rule. Empty input decodes to a nil rule,
// which evaluates as unanimous.
func DecodeRule(data []byte) (Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var doc RuleDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return doc.Rule()
}
