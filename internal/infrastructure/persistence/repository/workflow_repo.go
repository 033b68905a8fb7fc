package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow definition repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `
	id, company_id, name, description, priority, is_active,
	approvers, rules, created_at, updated_at`

// Create inserts a workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, wf *approval.WorkflowDefinition) error {
	approvers, rules, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions (
			company_id, name, description, priority, is_active,
			approvers, rules, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = wf.CreatedAt
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		wf.CompanyID,
		wf.Name,
		wf.Description,
		wf.Priority,
		wf.IsActive,
		approvers,
		rules,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow",
			zap.Int64("company_id", wf.CompanyID),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	wf.ID = id
	return nil
}

// GetByID retrieves a workflow definition by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*approval.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE id = ?`

	wf, err := scanWorkflow(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// Update overwrites the mutable fields of a definition
func (r *WorkflowRepository) Update(ctx context.Context, wf *approval.WorkflowDefinition) error {
	approvers, rules, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_definitions
		SET name = ?, description = ?, priority = ?, is_active = ?,
			approvers = ?, rules = ?, updated_at = ?
		WHERE id = ?
	`

	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = time.Now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		wf.Name,
		wf.Description,
		wf.Priority,
		wf.IsActive,
		approvers,
		rules,
		wf.UpdatedAt,
		wf.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.Int64("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	ok, err := rowsAffected(result)
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if !ok {
		return approval.ErrNotFound
	}
	return nil
}

// Delete removes a definition. Definitions referenced by approval records
// cannot be deleted.
func (r *WorkflowRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.getExecutor(ctx).ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return approval.NewValidationError("id", "workflow is referenced by approval records")
		}
		r.logger.Error("Failed to delete workflow", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	ok, err := rowsAffected(result)
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if !ok {
		return approval.ErrNotFound
	}
	return nil
}

// ListByCompany returns every definition of a company
func (r *WorkflowRepository) ListByCompany(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions
		WHERE company_id = ? ORDER BY priority, id`
	return r.list(ctx, query, companyID)
}

// ListActiveByCompany returns active definitions in selection order
func (r *WorkflowRepository) ListActiveByCompany(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions
		WHERE company_id = ? AND is_active = 1 ORDER BY priority, id`
	return r.list(ctx, query, companyID)
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...interface{}) ([]*approval.WorkflowDefinition, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*approval.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// encodeWorkflow renders the approvers list and rules document as JSON text
func encodeWorkflow(wf *approval.WorkflowDefinition) (string, sql.NullString, error) {
	approvers, err := json.Marshal(wf.Approvers)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to encode approvers: %w", err)
	}

	data, err := approval.EncodeRule(wf.Rules)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to encode rules: %w", err)
	}
	rules := sql.NullString{String: string(data), Valid: data != nil}

	return string(approvers), rules, nil
}

func scanWorkflow(row rowScanner) (*approval.WorkflowDefinition, error) {
	var (
		wf        approval.WorkflowDefinition
		approvers string
		rules     sql.NullString
	)

	err := row.Scan(
		&wf.ID,
		&wf.CompanyID,
		&wf.Name,
		&wf.Description,
		&wf.Priority,
		&wf.IsActive,
		&approvers,
		&rules,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(approvers), &wf.Approvers); err != nil {
		return nil, fmt.Errorf("workflow %d has malformed approvers: %w", wf.ID, err)
	}
	if rules.Valid {
		rule, err := approval.DecodeRule([]byte(rules.String))
		if err != nil {
			return nil, fmt.Errorf("workflow %d has malformed rules: %w", wf.ID, err)
		}
		wf.Rules = rule
	}
	return &wf, nil
}

// getExecutor returns appropriate executor based on context
func (r *WorkflowRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
