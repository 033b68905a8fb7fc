package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

type mockWorkflowRepo struct {
	createFunc              func(ctx context.Context, wf *approval.WorkflowDefinition) error
	getByIDFunc             func(ctx context.Context, id int64) (*approval.WorkflowDefinition, error)
	updateFunc              func(ctx context.Context, wf *approval.WorkflowDefinition) error
	deleteFunc              func(ctx context.Context, id int64) error
	listByCompanyFunc       func(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error)
	listActiveByCompanyFunc func(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error)
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *approval.WorkflowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, wf)
	}
	wf.ID = 1
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id int64) (*approval.WorkflowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, approval.ErrNotFound
}

func (m *mockWorkflowRepo) Update(ctx context.Context, wf *approval.WorkflowDefinition) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, wf)
	}
	return nil
}

func (m *mockWorkflowRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockWorkflowRepo) ListByCompany(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error) {
	if m.listByCompanyFunc != nil {
		return m.listByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

func (m *mockWorkflowRepo) ListActiveByCompany(ctx context.Context, companyID int64) ([]*approval.WorkflowDefinition, error) {
	if m.listActiveByCompanyFunc != nil {
		return m.listActiveByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

type mockExpenseRepo struct {
	createFunc        func(ctx context.Context, e *entity.Expense) error
	getByIDFunc       func(ctx context.Context, id int64) (*entity.Expense, error)
	listByCompanyFunc func(ctx context.Context, companyID int64, status workflow.State, limit, offset int) ([]*entity.Expense, error)
}

func (m *mockExpenseRepo) Create(ctx context.Context, e *entity.Expense) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, e)
	}
	e.ID = 1
	return nil
}

func (m *mockExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, approval.ErrNotFound
}

func (m *mockExpenseRepo) ListByCompany(ctx context.Context, companyID int64, status workflow.State, limit, offset int) ([]*entity.Expense, error) {
	if m.listByCompanyFunc != nil {
		return m.listByCompanyFunc(ctx, companyID, status, limit, offset)
	}
	return nil, nil
}

func (m *mockExpenseRepo) UpdateStatus(ctx context.Context, id int64, from, to workflow.State, approvedAt *time.Time) error {
	return nil
}

func (m *mockExpenseRepo) MarkSubmitted(ctx context.Context, id int64, at time.Time) error {
	return nil
}

type mockRecordRepo struct {
	listByExpenseFunc         func(ctx context.Context, expenseID int64) ([]*approval.Record, error)
	listPendingByApproverFunc func(ctx context.Context, approverID string) ([]*approval.Record, error)
}

func (m *mockRecordRepo) Create(ctx context.Context, r *approval.Record) error {
	return nil
}

func (m *mockRecordRepo) GetByID(ctx context.Context, id int64) (*approval.Record, error) {
	return nil, approval.ErrNotFound
}

func (m *mockRecordRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*approval.Record, error) {
	if m.listByExpenseFunc != nil {
		return m.listByExpenseFunc(ctx, expenseID)
	}
	return nil, nil
}

func (m *mockRecordRepo) ListPendingByApprover(ctx context.Context, approverID string) ([]*approval.Record, error) {
	if m.listPendingByApproverFunc != nil {
		return m.listPendingByApproverFunc(ctx, approverID)
	}
	return nil, nil
}

func (m *mockRecordRepo) Decide(ctx context.Context, r *approval.Record) error {
	return nil
}

type mockAuditRepo struct {
	createFunc       func(ctx context.Context, entry *entity.AuditEntry) error
	listByEntityFunc func(ctx context.Context, companyID int64, entityType string, entityID int64) ([]*entity.AuditEntry, error)
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *entity.AuditEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, entry)
	}
	return nil
}

func (m *mockAuditRepo) ListByEntity(ctx context.Context, companyID int64, entityType string, entityID int64) ([]*entity.AuditEntry, error) {
	if m.listByEntityFunc != nil {
		return m.listByEntityFunc(ctx, companyID, entityType, entityID)
	}
	return nil, nil
}

type mockUserRepo struct {
	createFunc      func(ctx context.Context, user *entity.User) error
	getByIDFunc     func(ctx context.Context, id string) (*entity.User, error)
	listByRolesFunc func(ctx context.Context, companyID int64, roles ...string) ([]*entity.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, approval.ErrNotFound
}

func (m *mockUserRepo) ListByRoles(ctx context.Context, companyID int64, roles ...string) ([]*entity.User, error) {
	if m.listByRolesFunc != nil {
		return m.listByRolesFunc(ctx, companyID, roles...)
	}
	return nil, nil
}

type mockNotificationRepo struct {
	mu      sync.Mutex
	created []*entity.Notification
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.created) + 1)
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	return nil, approval.ErrNotFound
}

func (m *mockNotificationRepo) ListPending(ctx context.Context, limit int) ([]*entity.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64) error {
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, errorMsg string, permanent bool) error {
	return nil
}

func (m *mockNotificationRepo) rows() []*entity.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.Notification(nil), m.created...)
}

type mockAuditSink struct {
	entries []*entity.AuditEntry
}

func (m *mockAuditSink) Record(ctx context.Context, entry *entity.AuditEntry) {
	m.entries = append(m.entries, entry)
}

type mockNotificationSink struct {
	requests []entity.NotificationRequest
}

func (m *mockNotificationSink) Notify(ctx context.Context, req entity.NotificationRequest) {
	m.requests = append(m.requests, req)
}

type mockRealtime struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockRealtime) Publish(companyID int64, evt *event.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return 1
}

func (m *mockRealtime) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockMetrics struct {
	mu     sync.Mutex
	events map[string]int
}

func (m *mockMetrics) DecisionRecorded(string)         {}
func (m *mockMetrics) VerdictReached(string, string)   {}
func (m *mockMetrics) StatusTransition(string, string) {}
func (m *mockMetrics) ConcurrencyConflict()            {}
func (m *mockMetrics) NotificationDelivered(string)    {}

func (m *mockMetrics) EventPublished(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string]int)
	}
	m.events[eventType]++
}
