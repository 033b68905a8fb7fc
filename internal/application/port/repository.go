package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// ExpenseRepository defines persistence operations for Expense.
// Lookups of missing rows return approval.ErrNotFound.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	ListByCompany(ctx context.Context, companyID int64, status workflow.State, limit, offset int) ([]*entity.Expense, error)

	// UpdateStatus writes the new status only if the row still holds from.
	// It returns approval.ErrConcurrencyConflict when no row matched.
	UpdateStatus(ctx context.Context, id int64, from, to workflow.State, approvedAt *time.Time) error

	// MarkSubmitted moves a draft to submitted and stamps submitted_at
	MarkSubmitted(ctx context.Context, id int64, at time.Time) error
}

// ApprovalRecordRepository defines persistence operations for approval records
type ApprovalRecordRepository interface {
	Create(ctx context.Context, record *approval.Record) error
	GetByID(ctx context.Context, id int64) (*approval.Record, error)
	ListByExpense(ctx context.Context, expenseID int64) ([]*approval.Record, error)
	ListPendingByApprover(ctx context.Context, approverID string) ([]*approval.Record, error)

	// Decide records a decision on a pending record owned by the approver.
	// It returns approval.ErrNotFound when no such pending record exists.
	Decide(ctx context.Context, record *approval.Record) error
}

// WorkflowRepository defines persistence operations for workflow definitions
type WorkflowRepository interface {
	Create(ctx context.Context, wf *approval.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*approval.WorkflowDefinition, error)
	Update(ctx context.Context, wf *approval.WorkflowDefinition) error
	Delete(ctx context.Context, id int64) error
	ListByCompany(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error)

	// ListActiveByCompany returns active definitions ordered by priority, then id
	ListActiveByCompany(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error)
}

// UserRepository reads the company directory
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ListByRoles(ctx context.Context, companyID int64, roles ...string) ([]*entity.User, error)
}

// AuditRepository persists audit entries
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
	ListByEntity(ctx context.Context, companyID int64, entityType string, entityID int64) ([]*entity.AuditEntry, error)
}

// NotificationRepository is the notification outbox
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	ListPending(ctx context.Context, limit int) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64) error

	// MarkFailed counts a failed attempt. The row stays PENDING for another
	// attempt unless permanent is set.
	MarkFailed(ctx context.Context, id int64, errorMsg string, permanent bool) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
