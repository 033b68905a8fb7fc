package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

func employeeActor() entity.Actor {
	return entity.Actor{UserID: "emp-1", CompanyID: 1, Role: entity.RoleEmployee}
}

func newTestExpenseService(expenses *mockExpenseRepo, records *mockRecordRepo, workflows *mockWorkflowRepo, audits *mockAuditRepo, sink *mockAuditSink) ExpenseService {
	return NewExpenseService(expenses, records, workflows, audits, sink, &mockLogger{})
}

func TestExpenseService_CreateDraft(t *testing.T) {
	rate := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	tests := []struct {
		name      string
		input     ExpenseInput
		wantErr   bool
		wantField string
		wantBase  string
		wantCat   string
	}{
		{
			name:     "base currency defaults rate to one",
			input:    ExpenseInput{Description: "taxi", Category: "travel", Amount: decimal.RequireFromString("42.10"), Currency: "usd"},
			wantBase: "42.1",
			wantCat:  entity.CategoryTravel,
		},
		{
			name:     "foreign currency converted",
			input:    ExpenseInput{Amount: decimal.RequireFromString("100"), Currency: "EUR", ExchangeRate: rate("1.0845")},
			wantBase: "108.45",
			wantCat:  entity.CategoryOther,
		},
		{
			name:      "zero amount",
			input:     ExpenseInput{Amount: decimal.Zero, Currency: "USD"},
			wantErr:   true,
			wantField: "amount",
		},
		{
			name:      "negative amount",
			input:     ExpenseInput{Amount: decimal.NewFromInt(-5), Currency: "USD"},
			wantErr:   true,
			wantField: "amount",
		},
		{
			name:      "bad currency",
			input:     ExpenseInput{Amount: decimal.NewFromInt(5), Currency: "US1"},
			wantErr:   true,
			wantField: "currency",
		},
		{
			name:      "zero rate",
			input:     ExpenseInput{Amount: decimal.NewFromInt(5), Currency: "JPY", ExchangeRate: rate("0")},
			wantErr:   true,
			wantField: "exchange_rate",
		},
		{
			name:      "unknown category",
			input:     ExpenseInput{Amount: decimal.NewFromInt(5), Currency: "USD", Category: "gifts"},
			wantErr:   true,
			wantField: "category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stored *entity.Expense
			expenses := &mockExpenseRepo{
				createFunc: func(ctx context.Context, e *entity.Expense) error {
					e.ID = 77
					stored = e
					return nil
				},
			}
			sink := &mockAuditSink{}
			svc := newTestExpenseService(expenses, &mockRecordRepo{}, &mockWorkflowRepo{}, &mockAuditRepo{}, sink)

			got, err := svc.CreateDraft(context.Background(), employeeActor(), tt.input)
			if tt.wantErr {
				var ve *approval.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Fatalf("CreateDraft() error = %v, want validation on %s", err, tt.wantField)
				}
				if stored != nil {
					t.Error("invalid draft must not be stored")
				}
				return
			}

			if err != nil {
				t.Fatalf("CreateDraft() error = %v", err)
			}
			if got.Status != workflow.StateDraft {
				t.Errorf("Status = %s, want draft", got.Status)
			}
			if got.SubmitterID != "emp-1" || got.CompanyID != 1 {
				t.Errorf("owner = (%s, %d)", got.SubmitterID, got.CompanyID)
			}
			if !got.AmountInBaseCurrency.Equal(decimal.RequireFromString(tt.wantBase)) {
				t.Errorf("AmountInBaseCurrency = %s, want %s", got.AmountInBaseCurrency, tt.wantBase)
			}
			if got.Category != tt.wantCat {
				t.Errorf("Category = %s, want %s", got.Category, tt.wantCat)
			}
			if len(got.Currency) != 3 || got.Currency != stored.Currency {
				t.Errorf("Currency = %q", got.Currency)
			}
			if len(sink.entries) != 1 || sink.entries[0].Action != entity.AuditActionExpenseCreated || sink.entries[0].EntityID != 77 {
				t.Errorf("expected expense.created audit, got %+v", sink.entries)
			}
		})
	}
}

func TestExpenseService_Get(t *testing.T) {
	expenses := &mockExpenseRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.Expense, error) {
			return &entity.Expense{ID: id, CompanyID: 2}, nil
		},
	}
	svc := newTestExpenseService(expenses, &mockRecordRepo{}, &mockWorkflowRepo{}, &mockAuditRepo{}, &mockAuditSink{})

	_, err := svc.Get(context.Background(), employeeActor(), 3)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound for another company", err)
	}
}

func TestExpenseService_List(t *testing.T) {
	var gotLimit int
	expenses := &mockExpenseRepo{
		listByCompanyFunc: func(ctx context.Context, companyID int64, status workflow.State, limit, offset int) ([]*entity.Expense, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := newTestExpenseService(expenses, &mockRecordRepo{}, &mockWorkflowRepo{}, &mockAuditRepo{}, &mockAuditSink{})

	if _, err := svc.List(context.Background(), employeeActor(), workflow.StatePending, 0, 0); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if gotLimit != 50 {
		t.Errorf("limit = %d, want default 50", gotLimit)
	}

	_, err := svc.List(context.Background(), employeeActor(), workflow.State("archived"), 10, 0)
	if !errors.Is(err, approval.ErrValidation) {
		t.Errorf("List() error = %v, want ErrValidation", err)
	}
}

func TestExpenseService_ListApprovals(t *testing.T) {
	expenses := &mockExpenseRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.Expense, error) {
			return &entity.Expense{ID: id, CompanyID: 1, Status: workflow.StatePending}, nil
		},
	}
	records := &mockRecordRepo{
		listByExpenseFunc: func(ctx context.Context, expenseID int64) ([]*approval.Record, error) {
			return []*approval.Record{
				{ID: 1, ExpenseID: expenseID, WorkflowID: 4, ApproverID: "m1", Status: approval.RecordApproved},
				{ID: 2, ExpenseID: expenseID, WorkflowID: 4, ApproverID: "m2", Status: approval.RecordPending},
				{ID: 3, ExpenseID: expenseID, WorkflowID: 4, ApproverID: "m3", Status: approval.RecordPending},
			}, nil
		},
	}

	t.Run("assessed under the record's workflow", func(t *testing.T) {
		workflows := &mockWorkflowRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*approval.WorkflowDefinition, error) {
				if id != 4 {
					t.Errorf("workflow id = %d, want 4", id)
				}
				return &approval.WorkflowDefinition{ID: 4, Approvers: []string{"m1", "m2", "m3"}, Rules: approval.PercentageRule{Percentage: 60}}, nil
			},
		}
		svc := newTestExpenseService(expenses, records, workflows, &mockAuditRepo{}, &mockAuditSink{})

		summary, err := svc.ListApprovals(context.Background(), employeeActor(), 10)
		if err != nil {
			t.Fatalf("ListApprovals() error = %v", err)
		}
		if len(summary.Records) != 3 || summary.Assessment == nil {
			t.Fatalf("summary = %+v", summary)
		}
		if summary.Assessment.RequiredApprovals != 2 || summary.Assessment.Tally.Approved != 1 {
			t.Errorf("assessment = %+v", summary.Assessment)
		}
		if summary.Assessment.Verdict != approval.VerdictUnchanged {
			t.Errorf("verdict = %s, want unchanged", summary.Assessment.Verdict)
		}
	})

	t.Run("missing workflow assessed as unanimous", func(t *testing.T) {
		svc := newTestExpenseService(expenses, records, &mockWorkflowRepo{}, &mockAuditRepo{}, &mockAuditSink{})

		summary, err := svc.ListApprovals(context.Background(), employeeActor(), 10)
		if err != nil {
			t.Fatalf("ListApprovals() error = %v", err)
		}
		if summary.Assessment.Rule != approval.RuleKindUnanimous {
			t.Errorf("rule = %s, want unanimous", summary.Assessment.Rule)
		}
	})

	t.Run("draft has no assessment", func(t *testing.T) {
		svc := newTestExpenseService(expenses, &mockRecordRepo{}, &mockWorkflowRepo{}, &mockAuditRepo{}, &mockAuditSink{})

		summary, err := svc.ListApprovals(context.Background(), employeeActor(), 10)
		if err != nil {
			t.Fatalf("ListApprovals() error = %v", err)
		}
		if summary.Assessment != nil {
			t.Errorf("expected no assessment, got %+v", summary.Assessment)
		}
	})
}

func TestExpenseService_PendingForApprover(t *testing.T) {
	records := &mockRecordRepo{
		listPendingByApproverFunc: func(ctx context.Context, approverID string) ([]*approval.Record, error) {
			if approverID != "m1" {
				t.Errorf("approverID = %s, want m1", approverID)
			}
			return []*approval.Record{{ID: 1, ApproverID: approverID, Status: approval.RecordPending}}, nil
		},
	}
	svc := newTestExpenseService(&mockExpenseRepo{}, records, &mockWorkflowRepo{}, &mockAuditRepo{}, &mockAuditSink{})

	got, err := svc.PendingForApprover(context.Background(), entity.Actor{UserID: "m1", CompanyID: 1, Role: entity.RoleManager})
	if err != nil {
		t.Fatalf("PendingForApprover() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestExpenseService_AuditTrail(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expenses := &mockExpenseRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.Expense, error) {
			return &entity.Expense{ID: id, CompanyID: 1}, nil
		},
	}
	records := &mockRecordRepo{
		listByExpenseFunc: func(ctx context.Context, expenseID int64) ([]*approval.Record, error) {
			return []*approval.Record{{ID: 8, ExpenseID: expenseID}}, nil
		},
	}
	audits := &mockAuditRepo{
		listByEntityFunc: func(ctx context.Context, companyID int64, entityType string, entityID int64) ([]*entity.AuditEntry, error) {
			switch entityType {
			case entity.AuditEntityExpense:
				return []*entity.AuditEntry{
					{ID: 1, Action: entity.AuditActionExpenseCreated, CreatedAt: base},
					{ID: 3, Action: entity.AuditActionExpenseApproved, CreatedAt: base.Add(2 * time.Minute)},
				}, nil
			case entity.AuditEntityApproval:
				return []*entity.AuditEntry{
					{ID: 2, Action: entity.AuditActionApprovalDecided, CreatedAt: base.Add(time.Minute)},
				}, nil
			}
			return nil, nil
		},
	}
	svc := newTestExpenseService(expenses, records, &mockWorkflowRepo{}, audits, &mockAuditSink{})

	entries, err := svc.AuditTrail(context.Background(), employeeActor(), 10)
	if err != nil {
		t.Fatalf("AuditTrail() error = %v", err)
	}
	want := []string{entity.AuditActionExpenseCreated, entity.AuditActionApprovalDecided, entity.AuditActionExpenseApproved}
	if len(entries) != len(want) {
		t.Fatalf("len = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Action, want[i])
		}
	}
}
