package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

const defaultMaxConflictRetries = 3

type engine struct {
	expenses  port.ExpenseRepository
	records   port.ApprovalRecordRepository
	workflows port.WorkflowRepository
	txManager port.TransactionManager

	notifier   port.NotificationSink
	audit      port.AuditSink
	metrics    port.MetricsRecorder
	logger     Logger
	maxRetries int
	now        func() time.Time

	locks *keyedMutex
}

// NewEngine creates the approval orchestrator
func NewEngine(
	expenses port.ExpenseRepository,
	records port.ApprovalRecordRepository,
	workflows port.WorkflowRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engine{
		expenses:   expenses,
		records:    records,
		workflows:  workflows,
		txManager:  txManager,
		notifier:   nopSink{},
		audit:      nopSink{},
		metrics:    nopMetrics{},
		logger:     nopLogger{},
		maxRetries: defaultMaxConflictRetries,
		now:        time.Now,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) Submit(ctx context.Context, actor entity.Actor, expenseID int64) (*SubmitResult, error) {
	unlock := e.locks.Lock(expenseID)
	defer unlock()

	now := e.now()
	result := &SubmitResult{}
	var (
		submitted domainwf.Transition
		routed    *domainwf.Transition
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		expense, err := e.expenses.GetByID(txCtx, expenseID)
		if err != nil {
			return err
		}
		if expense.CompanyID != actor.CompanyID || expense.SubmitterID != actor.UserID {
			return approval.ErrNotFound
		}

		machine, err := NewExpenseMachine(expense.Status)
		if err != nil {
			return err
		}
		if submitted, err = machine.Fire(txCtx, domainwf.TriggerSubmit); err != nil {
			return err
		}
		if err := e.expenses.MarkSubmitted(txCtx, expense.ID, now); err != nil {
			return fmt.Errorf("failed to mark expense submitted: %w", err)
		}
		expense.Status = machine.State()
		expense.SubmittedAt = &now
		result.Expense = expense

		wf, err := e.selectWorkflow(txCtx, expense.CompanyID)
		if err != nil {
			// keep the submitted status; the caller sees ErrNoWorkflowConfigured
			if errors.Is(err, approval.ErrNoWorkflowConfigured) {
				return nil
			}
			return err
		}
		if err := approval.ValidateApprovers(wf.Approvers); err != nil {
			return fmt.Errorf("workflow %d cannot route expenses: %w", wf.ID, err)
		}
		result.Workflow = wf

		records := approval.NewPendingRecords(expense.ID, wf, now)
		for _, r := range records {
			if err := e.records.Create(txCtx, r); err != nil {
				return fmt.Errorf("failed to create approval record for %s: %w", r.ApproverID, err)
			}
		}
		result.Records = records

		t, err := machine.Fire(txCtx, domainwf.TriggerRoute)
		if err != nil {
			return err
		}
		if err := e.expenses.UpdateStatus(txCtx, expense.ID, t.From, t.To, nil); err != nil {
			return err
		}
		expense.Status = t.To
		routed = &t
		return nil
	})
	if err != nil {
		e.logger.Error("Submit failed", "expense_id", expenseID, "actor", actor.UserID, "error", err)
		return nil, err
	}

	expense := result.Expense
	e.recordTransition(ctx, actor, expense, submitted, entity.AuditActionExpenseSubmitted, nil)

	if routed == nil {
		e.logger.Info("No active workflow, expense left submitted",
			"expense_id", expense.ID,
			"company_id", expense.CompanyID,
		)
		return result, approval.ErrNoWorkflowConfigured
	}

	e.recordTransition(ctx, actor, expense, *routed, entity.AuditActionExpenseRouted, map[string]interface{}{
		"workflow_id":    result.Workflow.ID,
		"approver_count": len(result.Records),
	})

	e.notifier.Notify(ctx, entity.NotificationRequest{
		CompanyID: expense.CompanyID,
		EventType: event.TypeExpenseSubmitted.String(),
		Audience:  entity.AudienceManagersAdmins,
		ExpenseID: expense.ID,
		ActorID:   actor.UserID,
		Payload: map[string]interface{}{
			"expense_id":    expense.ID,
			"submitter_id":  expense.SubmitterID,
			"description":   expense.Description,
			"amount":        expense.Amount.String(),
			"currency":      expense.Currency,
			"base_amount":   expense.AmountInBaseCurrency.String(),
			"workflow_id":   result.Workflow.ID,
			"workflow_name": result.Workflow.Name,
		},
	})

	e.logger.Info("Expense routed for approval",
		"expense_id", expense.ID,
		"workflow_id", result.Workflow.ID,
		"approvers", len(result.Records),
	)
	return result, nil
}

// selectWorkflow returns the active definition with the lowest priority
func (e *engine) selectWorkflow(ctx context.Context, companyID int64) (*approval.WorkflowDefinition, error) {
	active, err := e.workflows.ListActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	if len(active) == 0 {
		return nil, approval.ErrNoWorkflowConfigured
	}
	return active[0], nil
}

func (e *engine) Decide(ctx context.Context, actor entity.Actor, recordID int64, decision approval.RecordStatus, comments string) (*DecisionResult, error) {
	if !decision.IsDecision() {
		return nil, approval.NewValidationError("decision", "must be approved or rejected")
	}

	record, err := e.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !record.IsPending() || record.ApproverID != actor.UserID {
		return nil, approval.ErrNotFound
	}

	unlock := e.locks.Lock(record.ExpenseID)
	defer unlock()

	var result *DecisionResult
	for attempt := 0; ; attempt++ {
		result, err = e.decideOnce(ctx, actor, recordID, decision, comments)
		if !errors.Is(err, approval.ErrConcurrencyConflict) {
			break
		}
		e.metrics.ConcurrencyConflict()
		if attempt >= e.maxRetries {
			e.logger.Error("Decision retries exhausted",
				"record_id", recordID,
				"expense_id", record.ExpenseID,
				"attempts", attempt+1,
			)
			return nil, err
		}
		e.logger.Info("Retrying decision after concurrent status change",
			"record_id", recordID,
			"attempt", attempt+1,
		)
	}
	if err != nil {
		return nil, err
	}

	e.afterDecision(ctx, actor, result)
	return result, nil
}

// decideOnce runs one transactional read-modify-write of a decision
func (e *engine) decideOnce(ctx context.Context, actor entity.Actor, recordID int64, decision approval.RecordStatus, comments string) (*DecisionResult, error) {
	now := e.now()
	var result *DecisionResult

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		record, err := e.records.GetByID(txCtx, recordID)
		if err != nil {
			return err
		}
		if record.ApproverID != actor.UserID {
			return approval.ErrNotFound
		}

		expense, err := e.expenses.GetByID(txCtx, record.ExpenseID)
		if err != nil {
			return err
		}
		if expense.CompanyID != actor.CompanyID {
			return approval.ErrNotFound
		}

		if err := record.Decide(decision, comments, now); err != nil {
			return err
		}
		if err := e.records.Decide(txCtx, record); err != nil {
			return err
		}

		all, err := e.records.ListByExpense(txCtx, expense.ID)
		if err != nil {
			return fmt.Errorf("failed to list approval records: %w", err)
		}

		wf, err := e.workflows.GetByID(txCtx, record.WorkflowID)
		if err != nil {
			if !errors.Is(err, approval.ErrNotFound) {
				return fmt.Errorf("failed to load workflow: %w", err)
			}
			wf = nil
		}

		assessment := approval.Assess(all, wf)
		result = &DecisionResult{Record: record, Expense: expense, Assessment: assessment}

		if !assessment.Verdict.IsFinal() || expense.IsTerminal() || string(assessment.Verdict) == string(expense.Status) {
			return nil
		}

		machine, err := NewExpenseMachine(expense.Status)
		if err != nil {
			return err
		}
		trigger := domainwf.TriggerReject
		var approvedAt *time.Time
		if assessment.Verdict == approval.VerdictApproved {
			trigger = domainwf.TriggerApprove
			approvedAt = &now
		}
		t, err := machine.Fire(txCtx, trigger)
		if err != nil {
			return err
		}
		if err := e.expenses.UpdateStatus(txCtx, expense.ID, t.From, t.To, approvedAt); err != nil {
			return err
		}
		expense.Status = t.To
		expense.ApprovedAt = approvedAt
		expense.UpdatedAt = now
		result.Transition = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// afterDecision emits audit entries, notifications and metrics once committed
func (e *engine) afterDecision(ctx context.Context, actor entity.Actor, result *DecisionResult) {
	record := result.Record
	expense := result.Expense

	e.metrics.DecisionRecorded(record.Status.String())
	e.metrics.VerdictReached(result.Assessment.Rule.String(), result.Assessment.Verdict.String())

	e.appendAudit(ctx, &entity.AuditEntry{
		CompanyID:   expense.CompanyID,
		EntityType:  entity.AuditEntityApproval,
		EntityID:    record.ID,
		Action:      entity.AuditActionApprovalDecided,
		ActorID:     actor.UserID,
		BeforeState: approval.RecordPending.String(),
		AfterState:  record.Status.String(),
		Details: encodeDetails(map[string]interface{}{
			"expense_id": expense.ID,
			"comments":   record.Comments,
			"verdict":    result.Assessment.Verdict,
		}),
	})

	e.notifier.Notify(ctx, entity.NotificationRequest{
		CompanyID: expense.CompanyID,
		EventType: event.TypeApprovalDecided.String(),
		ExpenseID: expense.ID,
		ActorID:   actor.UserID,
		Payload: map[string]interface{}{
			"record_id":   record.ID,
			"expense_id":  expense.ID,
			"approver_id": record.ApproverID,
			"decision":    record.Status.String(),
			"verdict":     result.Assessment.Verdict.String(),
		},
	})

	if result.Transition == nil {
		e.logger.Info("Decision recorded",
			"record_id", record.ID,
			"expense_id", expense.ID,
			"decision", record.Status,
			"verdict", result.Assessment.Verdict,
		)
		return
	}

	t := *result.Transition
	action := entity.AuditActionExpenseRejected
	if t.To == domainwf.StateApproved {
		action = entity.AuditActionExpenseApproved
	}
	e.recordTransition(ctx, actor, expense, t, action, map[string]interface{}{
		"record_id": record.ID,
		"tally":     result.Assessment.Tally,
	})

	payload := map[string]interface{}{
		"expense_id":  expense.ID,
		"status":      expense.Status.String(),
		"previous":    t.From.String(),
		"decided_by":  actor.UserID,
		"amount":      expense.Amount.String(),
		"currency":    expense.Currency,
		"description": expense.Description,
	}
	if expense.ApprovedAt != nil {
		payload["approved_at"] = expense.ApprovedAt.Format(time.RFC3339)
	}
	e.notifier.Notify(ctx, entity.NotificationRequest{
		CompanyID: expense.CompanyID,
		EventType: event.TypeExpenseStatusUpdated.String(),
		Audience:  entity.AudienceSubmitter,
		ExpenseID: expense.ID,
		ActorID:   actor.UserID,
		Payload:   payload,
	})

	e.logger.Info("Expense status updated by verdict",
		"expense_id", expense.ID,
		"from", t.From,
		"to", t.To,
		"rule", result.Assessment.Rule,
	)
}

// recordTransition audits a status change and counts it
func (e *engine) recordTransition(ctx context.Context, actor entity.Actor, expense *entity.Expense, t domainwf.Transition, action string, details map[string]interface{}) {
	e.metrics.StatusTransition(t.From.String(), t.To.String())
	e.appendAudit(ctx, &entity.AuditEntry{
		CompanyID:   expense.CompanyID,
		EntityType:  entity.AuditEntityExpense,
		EntityID:    expense.ID,
		Action:      action,
		ActorID:     actor.UserID,
		BeforeState: t.From.String(),
		AfterState:  t.To.String(),
		Details:     encodeDetails(details),
	})
}

// appendAudit hands an entry to the audit sink. The sink never fails the caller.
func (e *engine) appendAudit(ctx context.Context, entry *entity.AuditEntry) {
	entry.CreatedAt = e.now()
	e.audit.Record(ctx, entry)
}

func encodeDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	data, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(data)
}

type nopSink struct{}

func (nopSink) Notify(context.Context, entity.NotificationRequest) {}
func (nopSink) Record(context.Context, *entity.AuditEntry)         {}

type nopMetrics struct{}

func (nopMetrics) DecisionRecorded(string)         {}
func (nopMetrics) VerdictReached(string, string)   {}
func (nopMetrics) StatusTransition(string, string) {}
func (nopMetrics) ConcurrencyConflict()            {}
func (nopMetrics) EventPublished(string)           {}
func (nopMetrics) NotificationDelivered(string)    {}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
