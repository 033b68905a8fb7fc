package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkflowInput is the writable part of a workflow definition
type WorkflowInput struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Priority    int                    `json:"priority"`
	IsActive    *bool                  `json:"is_active"`
	Approvers   []string               `json:"approvers"`
	Rules       *approval.RuleDocument `json:"rules"`
}

// WorkflowService manages the approval workflow definitions of a company
type WorkflowService interface {
	Create(ctx context.Context, actor entity.Actor, input WorkflowInput) (*approval.WorkflowDefinition, error)
	Update(ctx context.Context, actor entity.Actor, id int64, input WorkflowInput) (*approval.WorkflowDefinition, error)
	Delete(ctx context.Context, actor entity.Actor, id int64) error
	Get(ctx context.Context, actor entity.Actor, id int64) (*approval.WorkflowDefinition, error)
	List(ctx context.Context, actor entity.Actor, activeOnly bool) ([]*approval.WorkflowDefinition, error)
}

type workflowServiceImpl struct {
	workflows port.WorkflowRepository
	audit     port.AuditSink
	notifier  port.NotificationSink
	logger    Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	workflows port.WorkflowRepository,
	audit port.AuditSink,
	notifier port.NotificationSink,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		workflows: workflows,
		audit:     audit,
		notifier:  notifier,
		logger:    logger,
	}
}

// Create validates and stores a new definition
func (s *workflowServiceImpl) Create(ctx context.Context, actor entity.Actor, input WorkflowInput) (*approval.WorkflowDefinition, error) {
	if !actor.IsAdmin() {
		return nil, approval.ErrForbidden
	}

	wf := &approval.WorkflowDefinition{CompanyID: actor.CompanyID, IsActive: true}
	if err := applyInput(wf, input); err != nil {
		return nil, err
	}

	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := s.workflows.Create(ctx, wf); err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "company_id", actor.CompanyID)
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	s.recordChange(ctx, actor, wf, entity.AuditActionWorkflowCreated, "", snapshot(wf))
	s.logger.Info("Workflow created", "workflow_id", wf.ID, "company_id", wf.CompanyID, "rule", wf.EffectiveRule().Kind())
	return wf, nil
}

// Update replaces the writable fields of an existing definition
func (s *workflowServiceImpl) Update(ctx context.Context, actor entity.Actor, id int64, input WorkflowInput) (*approval.WorkflowDefinition, error) {
	if !actor.IsAdmin() {
		return nil, approval.ErrForbidden
	}

	wf, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	before := snapshot(wf)

	if err := applyInput(wf, input); err != nil {
		return nil, err
	}
	wf.UpdatedAt = time.Now()

	if err := s.workflows.Update(ctx, wf); err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", id)
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	s.recordChange(ctx, actor, wf, entity.AuditActionWorkflowUpdated, before, snapshot(wf))
	s.logger.Info("Workflow updated", "workflow_id", wf.ID, "company_id", wf.CompanyID)
	return wf, nil
}

// Delete removes a definition that no approval record refers to
func (s *workflowServiceImpl) Delete(ctx context.Context, actor entity.Actor, id int64) error {
	if !actor.IsAdmin() {
		return approval.ErrForbidden
	}

	wf, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.workflows.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete workflow", "error", err, "workflow_id", id)
		return fmt.Errorf("delete workflow: %w", err)
	}

	s.recordChange(ctx, actor, wf, entity.AuditActionWorkflowDeleted, snapshot(wf), "")
	s.logger.Info("Workflow deleted", "workflow_id", id, "company_id", wf.CompanyID)
	return nil
}

// Get returns a definition of the actor's company
func (s *workflowServiceImpl) Get(ctx context.Context, actor entity.Actor, id int64) (*approval.WorkflowDefinition, error) {
	wf, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.CompanyID != actor.CompanyID {
		return nil, approval.ErrNotFound
	}
	return wf, nil
}

// List returns the company's definitions, optionally only the active ones in
// selection order
func (s *workflowServiceImpl) List(ctx context.Context, actor entity.Actor, activeOnly bool) ([]*approval.WorkflowDefinition, error) {
	if activeOnly {
		return s.workflows.ListActiveByCompany(ctx, actor.CompanyID)
	}
	return s.workflows.ListByCompany(ctx, actor.CompanyID)
}

func (s *workflowServiceImpl) recordChange(ctx context.Context, actor entity.Actor, wf *approval.WorkflowDefinition, action, before, after string) {
	s.audit.Record(ctx, &entity.AuditEntry{
		CompanyID:   wf.CompanyID,
		EntityType:  entity.AuditEntityWorkflow,
		EntityID:    wf.ID,
		Action:      action,
		ActorID:     actor.UserID,
		BeforeState: before,
		AfterState:  after,
		CreatedAt:   time.Now(),
	})

	s.notifier.Notify(ctx, entity.NotificationRequest{
		CompanyID: wf.CompanyID,
		EventType: event.TypeWorkflowChanged.String(),
		Audience:  entity.AudienceManagersAdmins,
		ActorID:   actor.UserID,
		Payload: map[string]interface{}{
			"workflow_id": wf.ID,
			"action":      action,
		},
	})
}

// applyInput copies the input onto the definition and validates the result
func applyInput(wf *approval.WorkflowDefinition, input WorkflowInput) error {
	var rule approval.Rule
	if input.Rules != nil {
		r, err := input.Rules.Rule()
		if err != nil {
			return err
		}
		rule = r
	}

	wf.Name = input.Name
	wf.Description = input.Description
	wf.Priority = input.Priority
	if input.IsActive != nil {
		wf.IsActive = *input.IsActive
	}
	wf.Approvers = input.Approvers
	wf.Rules = rule

	return wf.Validate()
}

// snapshot renders a definition for the audit trail
func snapshot(wf *approval.WorkflowDefinition) string {
	data, err := json.Marshal(wf)
	if err != nil {
		return ""
	}
	return string(data)
}
