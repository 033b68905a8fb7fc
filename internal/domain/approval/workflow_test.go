package approval

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowDefinition_Validate(t *testing.T) {
	base := func(rule Rule) *WorkflowDefinition {
		return &WorkflowDefinition{
			CompanyID: 1,
			Name:      "Default",
			Approvers: []string{"u1", "u2", "u7"},
			Rules:     rule,
		}
	}

	tests := []struct {
		name      string
		wf        *WorkflowDefinition
		wantField string
	}{
		{name: "unanimous by default", wf: base(nil)},
		{name: "percentage in range", wf: base(PercentageRule{Percentage: 60})},
		{name: "percentage 100", wf: base(PercentageRule{Percentage: 100})},
		{name: "override subset", wf: base(OverrideRule{OverrideApprovers: []string{"u7"}})},
		{name: "hybrid OR", wf: base(HybridRule{Percentage: 50, OverrideApprovers: []string{"u7"}, Combinator: CombinatorOr})},
		{
			name:      "blank name",
			wf:        &WorkflowDefinition{Name: "  ", Approvers: []string{"u1"}},
			wantField: "name",
		},
		{
			name:      "no approvers",
			wf:        &WorkflowDefinition{Name: "wf"},
			wantField: "approvers",
		},
		{
			name:      "blank approver",
			wf:        &WorkflowDefinition{Name: "wf", Approvers: []string{"u1", ""}},
			wantField: "approvers",
		},
		{
			name:      "duplicate approver",
			wf:        &WorkflowDefinition{Name: "wf", Approvers: []string{"u1", "u1"}},
			wantField: "approvers",
		},
		{name: "percentage zero", wf: base(PercentageRule{Percentage: 0}), wantField: "rules.percentage"},
		{name: "percentage above 100", wf: base(PercentageRule{Percentage: 101}), wantField: "rules.percentage"},
		{name: "empty overrides", wf: base(OverrideRule{}), wantField: "rules.override_approvers"},
		{
			name:      "override not an approver",
			wf:        base(OverrideRule{OverrideApprovers: []string{"ceo"}}),
			wantField: "rules.override_approvers",
		},
		{
			name:      "hybrid bad combinator",
			wf:        base(HybridRule{Percentage: 50, OverrideApprovers: []string{"u7"}, Combinator: "XOR"}),
			wantField: "rules.combinator",
		},
		{
			name:      "hybrid bad percentage",
			wf:        base(HybridRule{Percentage: -5, OverrideApprovers: []string{"u7"}, Combinator: CombinatorAnd}),
			wantField: "rules.percentage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wf.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestRuleCodec(t *testing.T) {
	rules := []Rule{
		PercentageRule{Percentage: 60},
		OverrideRule{OverrideApprovers: []string{"u7", "u8"}},
		HybridRule{Percentage: 50, OverrideApprovers: []string{"u7"}, Combinator: CombinatorAnd},
		UnanimousRule{},
	}

	for _, rule := range rules {
		t.Run(rule.Kind().String(), func(t *testing.T) {
			data, err := EncodeRule(rule)
			require.NoError(t, err)

			decoded, err := DecodeRule(data)
			require.NoError(t, err)
			assert.Equal(t, rule, decoded)
		})
	}
}

func TestDecodeRule(t *testing.T) {
	t.Run("empty decodes to nil", func(t *testing.T) {
		rule, err := DecodeRule(nil)
		require.NoError(t, err)
		assert.Nil(t, rule)

		rule, err = DecodeRule([]byte(" null "))
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("stored document format", func(t *testing.T) {
		rule, err := DecodeRule([]byte(`{"type":"hybrid","percentage":50,"override_approvers":["u7"],"combinator":"OR"}`))
		require.NoError(t, err)
		assert.Equal(t, HybridRule{Percentage: 50, OverrideApprovers: []string{"u7"}, Combinator: CombinatorOr}, rule)
	})

	t.Run("unknown type is a validation error", func(t *testing.T) {
		_, err := DecodeRule([]byte(`{"type":"majority"}`))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeRule([]byte(`{"type":`))
		assert.Error(t, err)
	})
}

func TestWorkflowDefinition_JSON(t *testing.T) {
	wf := WorkflowDefinition{
		ID:        3,
		CompanyID: 9,
		Name:      "Travel",
		Priority:  1,
		IsActive:  true,
		Approvers: []string{"u1", "u7"},
		Rules:     OverrideRule{OverrideApprovers: []string{"u7"}},
	}

	data, err := json.Marshal(wf)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rules":{"type":"override","override_approvers":["u7"]}`)

	var decoded WorkflowDefinition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, wf.Rules, decoded.Rules)
	assert.Equal(t, wf.Approvers, decoded.Approvers)
	assert.Equal(t, wf.Name, decoded.Name)

	var noRules WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","approvers":["a"],"rules":null}`), &noRules))
	assert.Nil(t, noRules.Rules)
	assert.Equal(t, UnanimousRule{}, noRules.EffectiveRule())
}

func TestRecord_Decide(t *testing.T) {
	now := time.Now()

	t.Run("pending record accepts a decision", func(t *testing.T) {
		r := &Record{ApproverID: "u1", Status: RecordPending}
		require.NoError(t, r.Decide(RecordApproved, "ok", now))
		assert.Equal(t, RecordApproved, r.Status)
		assert.Equal(t, "ok", r.Comments)
		require.NotNil(t, r.DecidedAt)
		assert.Equal(t, now, *r.DecidedAt)
	})

	t.Run("decided record is not found", func(t *testing.T) {
		r := &Record{ApproverID: "u1", Status: RecordRejected}
		assert.ErrorIs(t, r.Decide(RecordApproved, "", now), ErrNotFound)
		assert.Equal(t, RecordRejected, r.Status)
	})

	t.Run("pending is not a decision", func(t *testing.T) {
		r := &Record{ApproverID: "u1", Status: RecordPending}
		assert.ErrorIs(t, r.Decide(RecordPending, "", now), ErrValidation)
	})
}

func TestNewPendingRecords(t *testing.T) {
	wf := &WorkflowDefinition{ID: 4, Approvers: []string{"a", "b", "c"}}
	recs := NewPendingRecords(12, wf, time.Now())

	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, int64(12), r.ExpenseID)
		assert.Equal(t, int64(4), r.WorkflowID)
		assert.Equal(t, wf.Approvers[i], r.ApproverID)
		assert.True(t, r.IsPending())
	}
}
