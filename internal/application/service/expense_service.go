package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ExpenseInput is the payload for a new draft expense
type ExpenseInput struct {
	Description  string           `json:"description"`
	Category     string           `json:"category"`
	Amount       decimal.Decimal  `json:"amount"`
	Currency     string           `json:"currency"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
}

// ApprovalSummary lists the approval records of an expense with the
// current evaluation
type ApprovalSummary struct {
	ExpenseID  int64                `json:"expense_id"`
	Status     workflow.State       `json:"status"`
	Records    []*approval.Record   `json:"records"`
	Assessment *approval.Assessment `json:"assessment,omitempty"`
}

// ExpenseService manages expenses outside of the approval transitions
type ExpenseService interface {
	CreateDraft(ctx context.Context, actor entity.Actor, input ExpenseInput) (*entity.Expense, error)
	Get(ctx context.Context, actor entity.Actor, id int64) (*entity.Expense, error)
	List(ctx context.Context, actor entity.Actor, status workflow.State, limit, offset int) ([]*entity.Expense, error)
	ListApprovals(ctx context.Context, actor entity.Actor, expenseID int64) (*ApprovalSummary, error)
	PendingForApprover(ctx context.Context, actor entity.Actor) ([]*approval.Record, error)
	AuditTrail(ctx context.Context, actor entity.Actor, expenseID int64) ([]*entity.AuditEntry, error)
}

type expenseServiceImpl struct {
	expenses  port.ExpenseRepository
	records   port.ApprovalRecordRepository
	workflows port.WorkflowRepository
	audits    port.AuditRepository
	audit     port.AuditSink
	logger    Logger
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	expenses port.ExpenseRepository,
	records port.ApprovalRecordRepository,
	workflows port.WorkflowRepository,
	audits port.AuditRepository,
	audit port.AuditSink,
	logger Logger,
) ExpenseService {
	return &expenseServiceImpl{
		expenses:  expenses,
		records:   records,
		workflows: workflows,
		audits:    audits,
		audit:     audit,
		logger:    logger,
	}
}

var validCategories = map[string]bool{
	entity.CategoryTravel:        true,
	entity.CategoryMeal:          true,
	entity.CategoryAccommodation: true,
	entity.CategoryEquipment:     true,
	entity.CategoryOther:         true,
}

// CreateDraft stores a new expense in draft status for the actor
func (s *expenseServiceImpl) CreateDraft(ctx context.Context, actor entity.Actor, input ExpenseInput) (*entity.Expense, error) {
	expense, err := newDraft(actor, input)
	if err != nil {
		return nil, err
	}

	if err := s.expenses.Create(ctx, expense); err != nil {
		s.logger.Error("Failed to create expense", "error", err, "submitter_id", actor.UserID)
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.audit.Record(ctx, &entity.AuditEntry{
		CompanyID:  expense.CompanyID,
		EntityType: entity.AuditEntityExpense,
		EntityID:   expense.ID,
		Action:     entity.AuditActionExpenseCreated,
		ActorID:    actor.UserID,
		AfterState: expense.Status.String(),
		CreatedAt:  expense.CreatedAt,
	})

	s.logger.Info("Expense draft created",
		"expense_id", expense.ID,
		"company_id", expense.CompanyID,
		"amount", expense.Amount.String(),
		"currency", expense.Currency,
	)
	return expense, nil
}

func newDraft(actor entity.Actor, input ExpenseInput) (*entity.Expense, error) {
	if !input.Amount.IsPositive() {
		return nil, approval.NewValidationError("amount", "must be greater than zero")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if err := utils.ValidateCurrency(currency); err != nil {
		return nil, approval.NewValidationError("currency", "must be a 3-letter code")
	}

	rate := decimal.NewFromInt(1)
	if input.ExchangeRate != nil {
		rate = *input.ExchangeRate
	}
	if !rate.IsPositive() {
		return nil, approval.NewValidationError("exchange_rate", "must be greater than zero")
	}

	category := strings.ToLower(strings.TrimSpace(input.Category))
	if category == "" {
		category = entity.CategoryOther
	}
	if !validCategories[category] {
		return nil, approval.NewValidationError("category", fmt.Sprintf("unknown category %q", input.Category))
	}

	now := time.Now()
	expense := &entity.Expense{
		CompanyID:    actor.CompanyID,
		SubmitterID:  actor.UserID,
		Description:  utils.SanitizeString(input.Description),
		Category:     category,
		Amount:       input.Amount,
		Currency:     currency,
		ExchangeRate: rate,
		Status:       workflow.StateDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	expense.ConvertToBase()
	return expense, nil
}

// Get returns an expense of the actor's company
func (s *expenseServiceImpl) Get(ctx context.Context, actor entity.Actor, id int64) (*entity.Expense, error) {
	expense, err := s.expenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense.CompanyID != actor.CompanyID {
		return nil, approval.ErrNotFound
	}
	return expense, nil
}

// List returns the company's expenses, filtered by status when set
func (s *expenseServiceImpl) List(ctx context.Context, actor entity.Actor, status workflow.State, limit, offset int) ([]*entity.Expense, error) {
	if status != "" && !status.IsValid() {
		return nil, approval.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.expenses.ListByCompany(ctx, actor.CompanyID, status, limit, offset)
}

// ListApprovals returns the approval records of an expense and their
// evaluation under the workflow that created them
func (s *expenseServiceImpl) ListApprovals(ctx context.Context, actor entity.Actor, expenseID int64) (*ApprovalSummary, error) {
	expense, err := s.Get(ctx, actor, expenseID)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListByExpense(ctx, expense.ID)
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}

	summary := &ApprovalSummary{
		ExpenseID: expense.ID,
		Status:    expense.Status,
		Records:   records,
	}
	if len(records) == 0 {
		return summary, nil
	}

	wf, err := s.workflows.GetByID(ctx, records[0].WorkflowID)
	if err != nil {
		if !errors.Is(err, approval.ErrNotFound) {
			return nil, fmt.Errorf("get workflow: %w", err)
		}
		wf = nil
	}
	assessment := approval.Assess(records, wf)
	summary.Assessment = &assessment
	return summary, nil
}

// PendingForApprover returns the records waiting for the actor's decision
func (s *expenseServiceImpl) PendingForApprover(ctx context.Context, actor entity.Actor) ([]*approval.Record, error) {
	records, err := s.records.ListPendingByApprover(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return records, nil
}

// AuditTrail returns the audit entries of an expense and its approval
// records, oldest first
func (s *expenseServiceImpl) AuditTrail(ctx context.Context, actor entity.Actor, expenseID int64) ([]*entity.AuditEntry, error) {
	expense, err := s.Get(ctx, actor, expenseID)
	if err != nil {
		return nil, err
	}

	entries, err := s.audits.ListByEntity(ctx, expense.CompanyID, entity.AuditEntityExpense, expense.ID)
	if err != nil {
		return nil, fmt.Errorf("list expense audit: %w", err)
	}

	records, err := s.records.ListByExpense(ctx, expense.ID)
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	for _, r := range records {
		recordEntries, err := s.audits.ListByEntity(ctx, expense.CompanyID, entity.AuditEntityApproval, r.ID)
		if err != nil {
			return nil, fmt.Errorf("list approval audit: %w", err)
		}
		entries = append(entries, recordEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}
