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
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

const expenseColumns = `
	id, company_id, submitter_id, description, category,
	amount, currency, exchange_rate, amount_in_base_currency,
	status, submitted_at, approved_at, created_at, updated_at`

// Create inserts a new expense
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	query := `
		INSERT INTO expenses (
			company_id, submitter_id, description, category,
			amount, currency, exchange_rate, amount_in_base_currency,
			status, submitted_at, approved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = expense.CreatedAt

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		expense.CompanyID,
		expense.SubmitterID,
		expense.Description,
		expense.Category,
		expense.Amount,
		expense.Currency,
		expense.ExchangeRate,
		expense.AmountInBaseCurrency,
		string(expense.Status),
		expense.SubmittedAt,
		expense.ApprovedAt,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense",
			zap.Int64("company_id", expense.CompanyID),
			zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	expense.ID = id
	return nil
}

// GetByID retrieves an expense by ID
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	expense, err := scanExpense(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// ListByCompany lists a company's expenses, newest first. An empty status
// lists every status.
func (r *ExpenseRepository) ListByCompany(ctx context.Context, companyID int64, status workflow.State, limit, offset int) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE company_id = ?`
	args := []interface{}{companyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

// UpdateStatus moves the expense from one status to another. The write only
// applies while the row still holds from. approved_at is overwritten, so a nil
// approvedAt clears it.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id int64, from, to workflow.State, approvedAt *time.Time) error {
	query := `
		UPDATE expenses
		SET status = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, string(to), approvedAt, time.Now(), id, string(from))
	if err != nil {
		r.logger.Error("Failed to update expense status",
			zap.Int64("id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}

	ok, err := rowsAffected(result)
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if !ok {
		return fmt.Errorf("expense %d is no longer %s: %w", id, from, approval.ErrConcurrencyConflict)
	}
	return nil
}

// MarkSubmitted moves a draft to submitted
func (r *ExpenseRepository) MarkSubmitted(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE expenses
		SET status = ?, submitted_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		string(workflow.StateSubmitted), at, at, id, string(workflow.StateDraft))
	if err != nil {
		r.logger.Error("Failed to mark expense submitted", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark submitted: %w", err)
	}

	ok, err := rowsAffected(result)
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if !ok {
		return fmt.Errorf("expense %d is no longer a draft: %w", id, approval.ErrConcurrencyConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var (
		expense     entity.Expense
		status      string
		submittedAt sql.NullTime
		approvedAt  sql.NullTime
	)

	err := row.Scan(
		&expense.ID,
		&expense.CompanyID,
		&expense.SubmitterID,
		&expense.Description,
		&expense.Category,
		&expense.Amount,
		&expense.Currency,
		&expense.ExchangeRate,
		&expense.AmountInBaseCurrency,
		&status,
		&submittedAt,
		&approvedAt,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	expense.Status = workflow.State(status)
	if submittedAt.Valid {
		expense.SubmittedAt = &submittedAt.Time
	}
	if approvedAt.Valid {
		expense.ApprovedAt = &approvedAt.Time
	}
	return &expense, nil
}

// getExecutor returns appropriate executor based on context
func (r *ExpenseRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
