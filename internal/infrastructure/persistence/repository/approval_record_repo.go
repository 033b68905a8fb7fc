package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// ApprovalRecordRepository implements port.ApprovalRecordRepository
type ApprovalRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRecordRepository creates a new approval record repository
func NewApprovalRecordRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRecordRepository {
	return &ApprovalRecordRepository{
		db:     db,
		logger: logger,
	}
}

const recordColumns = `
	id, expense_id, workflow_id, approver_id, status,
	comments, decided_at, created_at, updated_at`

// Create inserts a pending record
func (r *ApprovalRecordRepository) Create(ctx context.Context, record *approval.Record) error {
	query := `
		INSERT INTO approval_records (
			expense_id, workflow_id, approver_id, status,
			comments, decided_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		record.ExpenseID,
		record.WorkflowID,
		record.ApproverID,
		string(record.Status),
		record.Comments,
		record.DecidedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return approval.NewValidationError("approver_id",
				fmt.Sprintf("%s already has a record on expense %d", record.ApproverID, record.ExpenseID))
		}
		r.logger.Error("Failed to create approval record",
			zap.Int64("expense_id", record.ExpenseID),
			zap.String("approver_id", record.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to create approval record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetByID retrieves a record by ID
func (r *ApprovalRecordRepository) GetByID(ctx context.Context, id int64) (*approval.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM approval_records WHERE id = ?`

	record, err := scanRecord(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get approval record", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval record: %w", err)
	}
	return record, nil
}

// ListByExpense returns every record of an expense in creation order
func (r *ApprovalRecordRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*approval.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM approval_records WHERE expense_id = ? ORDER BY id`
	return r.list(ctx, query, expenseID)
}

// ListPendingByApprover returns the approver's undecided records, oldest first
func (r *ApprovalRecordRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]*approval.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM approval_records
		WHERE approver_id = ? AND status = ? ORDER BY created_at, id`
	return r.list(ctx, query, approverID, string(approval.RecordPending))
}

// Decide stores the decision of a pending record
func (r *ApprovalRecordRepository) Decide(ctx context.Context, record *approval.Record) error {
	query := `
		UPDATE approval_records
		SET status = ?, comments = ?, decided_at = ?, updated_at = ?
		WHERE id = ? AND approver_id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		string(record.Status),
		record.Comments,
		record.DecidedAt,
		time.Now(),
		record.ID,
		record.ApproverID,
		string(approval.RecordPending),
	)
	if err != nil {
		r.logger.Error("Failed to decide approval record", zap.Int64("id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to decide approval record: %w", err)
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

func (r *ApprovalRecordRepository) list(ctx context.Context, query string, args ...interface{}) ([]*approval.Record, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approval records", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer rows.Close()

	var records []*approval.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(row rowScanner) (*approval.Record, error) {
	var (
		record    approval.Record
		status    string
		decidedAt sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.ExpenseID,
		&record.WorkflowID,
		&record.ApproverID,
		&status,
		&record.Comments,
		&decidedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = approval.RecordStatus(status)
	if decidedAt.Valid {
		record.DecidedAt = &decidedAt.Time
	}
	return &record, nil
}

// getExecutor returns appropriate executor based on context
func (r *ApprovalRecordRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.ApprovalRecordRepository = (*ApprovalRecordRepository)(nil)
