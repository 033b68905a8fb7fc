package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// MockOutbox keeps notifications in memory with repository semantics
type MockOutbox struct {
	mu      sync.Mutex
	rows    map[int64]*entity.Notification
	order   []int64
	listErr error
}

func NewMockOutbox(rows ...*entity.Notification) *MockOutbox {
	m := &MockOutbox{rows: make(map[int64]*entity.Notification)}
	for _, n := range rows {
		if n.Status == "" {
			n.Status = entity.NotificationStatusPending
		}
		m.rows[n.ID] = n
		m.order = append(m.order, n.ID)
	}
	return m
}

func (m *MockOutbox) Create(ctx context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.order) + 1)
	m.rows[n.ID] = n
	m.order = append(m.order, n.ID)
	return nil
}

func (m *MockOutbox) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (m *MockOutbox) ListPending(ctx context.Context, limit int) ([]*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []*entity.Notification
	for _, id := range m.order {
		n := m.rows[id]
		if n.Status != entity.NotificationStatusPending {
			continue
		}
		copied := *n
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOutbox) MarkSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Status = entity.NotificationStatusSent
	n.Attempts++
	now := time.Now()
	n.SentAt = &now
	return nil
}

func (m *MockOutbox) MarkFailed(ctx context.Context, id int64, errorMsg string, permanent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Attempts++
	n.ErrorMessage = errorMsg
	if permanent {
		n.Status = entity.NotificationStatusFailed
	}
	return nil
}

func (m *MockOutbox) get(id int64) entity.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// MockDirectory resolves recipients by id
type MockDirectory struct {
	users map[string]*entity.User
	err   error
}

func (m *MockDirectory) Create(ctx context.Context, user *entity.User) error { return nil }

func (m *MockDirectory) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, approval.ErrNotFound
}

func (m *MockDirectory) ListByRoles(ctx context.Context, companyID int64, roles ...string) ([]*entity.User, error) {
	return nil, nil
}

// MockSender records sent messages and fails for configured open ids
type MockSender struct {
	mu      sync.Mutex
	sent    map[string][]string
	failFor map[string]bool
}

func NewMockSender() *MockSender {
	return &MockSender{sent: make(map[string][]string), failFor: make(map[string]bool)}
}

func (m *MockSender) SendText(ctx context.Context, openID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[openID] {
		return "", errors.New("lark unavailable")
	}
	m.sent[openID] = append(m.sent[openID], text)
	return "om_" + openID, nil
}

func (m *MockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, msgs := range m.sent {
		total += len(msgs)
	}
	return total
}

// MockMetrics counts delivery statuses
type MockMetrics struct {
	mu       sync.Mutex
	statuses map[string]int
}

func (m *MockMetrics) DecisionRecorded(string)         {}
func (m *MockMetrics) VerdictReached(string, string)   {}
func (m *MockMetrics) StatusTransition(string, string) {}
func (m *MockMetrics) ConcurrencyConflict()            {}
func (m *MockMetrics) EventPublished(string)           {}

func (m *MockMetrics) NotificationDelivered(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[string]int)
	}
	m.statuses[status]++
}

func (m *MockMetrics) get(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[status]
}

func directory() *MockDirectory {
	return &MockDirectory{users: map[string]*entity.User{
		"m1": {ID: "m1", CompanyID: 1, Role: entity.RoleManager, LarkOpenID: "ou_m1"},
		"m2": {ID: "m2", CompanyID: 1, Role: entity.RoleManager, LarkOpenID: "ou_m2"},
		"u1": {ID: "u1", CompanyID: 1, Role: entity.RoleEmployee},
	}}
}

func newWorker(outbox *MockOutbox, users *MockDirectory, sender *MockSender, metrics *MockMetrics, maxAttempts int) *NotificationWorker {
	return NewNotificationWorker(
		NotificationWorkerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10, MaxAttempts: maxAttempts},
		outbox, users, sender, metrics, zap.NewNop(),
	)
}

func TestNotificationWorker_ProcessPending(t *testing.T) {
	outbox := NewMockOutbox(
		&entity.Notification{ID: 1, RecipientID: "m1", Message: "Expense #1 submitted"},
		&entity.Notification{ID: 2, RecipientID: "m2", Message: "Expense #1 submitted"},
		&entity.Notification{ID: 3, RecipientID: "u1", Message: "Expense #1 approved"},
		&entity.Notification{ID: 4, RecipientID: "ghost", Message: "Expense #1 approved"},
	)
	sender := NewMockSender()
	metrics := &MockMetrics{}
	w := newWorker(outbox, directory(), sender, metrics, 3)

	sent, err := w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	assert.Equal(t, entity.NotificationStatusSent, outbox.get(1).Status)
	assert.Equal(t, entity.NotificationStatusSent, outbox.get(2).Status)
	assert.Equal(t, []string{"Expense #1 submitted"}, sender.sent["ou_m1"])

	// recipients without an open id fail permanently
	for _, id := range []int64{3, 4} {
		row := outbox.get(id)
		assert.Equal(t, entity.NotificationStatusFailed, row.Status)
		assert.Equal(t, errNoOpenID, row.ErrorMessage)
	}

	assert.Equal(t, 2, metrics.get(entity.NotificationStatusSent))
	assert.Equal(t, 2, metrics.get(entity.NotificationStatusFailed))

	stats := w.Stats()
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 2, stats.Failed)
}

func TestNotificationWorker_RetriesUntilMaxAttempts(t *testing.T) {
	outbox := NewMockOutbox(&entity.Notification{ID: 1, RecipientID: "m1", Message: "hello"})
	sender := NewMockSender()
	sender.failFor["ou_m1"] = true
	metrics := &MockMetrics{}
	w := newWorker(outbox, directory(), sender, metrics, 3)

	ctx := context.Background()
	for attempt := 1; attempt <= 2; attempt++ {
		_, err := w.ProcessPending(ctx)
		require.NoError(t, err)

		row := outbox.get(1)
		assert.Equal(t, entity.NotificationStatusPending, row.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, row.Attempts)
	}

	_, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	row := outbox.get(1)
	assert.Equal(t, entity.NotificationStatusFailed, row.Status)
	assert.Equal(t, 3, row.Attempts)
	assert.Equal(t, "lark unavailable", row.ErrorMessage)

	assert.Equal(t, 2, metrics.get(statusRetry))
	assert.Equal(t, 1, metrics.get(entity.NotificationStatusFailed))

	// nothing left to pick up
	sent, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestNotificationWorker_DirectoryError(t *testing.T) {
	outbox := NewMockOutbox(&entity.Notification{ID: 1, RecipientID: "m1", Message: "hello"})
	users := &MockDirectory{err: errors.New("database is locked")}
	w := newWorker(outbox, users, NewMockSender(), &MockMetrics{}, 3)

	_, err := w.ProcessPending(context.Background())
	require.NoError(t, err)

	// transient lookup failures leave the row untouched for the next poll
	row := outbox.get(1)
	assert.Equal(t, entity.NotificationStatusPending, row.Status)
	assert.Zero(t, row.Attempts)
}

func TestNotificationWorker_ListError(t *testing.T) {
	outbox := NewMockOutbox()
	outbox.listErr = errors.New("disk I/O error")
	w := newWorker(outbox, directory(), NewMockSender(), &MockMetrics{}, 3)

	_, err := w.ProcessPending(context.Background())
	assert.Error(t, err)
}

func TestNotificationWorker_Lifecycle(t *testing.T) {
	outbox := NewMockOutbox(&entity.Notification{ID: 1, RecipientID: "m1", Message: "hello"})
	sender := NewMockSender()
	w := newWorker(outbox, directory(), sender, &MockMetrics{}, 3)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.Stats().Running)
	require.NoError(t, w.Stop())
}

func TestWorkerManager(t *testing.T) {
	outbox := NewMockOutbox()
	w := newWorker(outbox, directory(), NewMockSender(), &MockMetrics{}, 3)

	m := NewWorkerManager(zap.NewNop())
	m.Register(w)
	assert.Equal(t, 1, m.GetWorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Equal(t, []string{"NotificationWorker"}, m.Running())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.False(t, w.Stats().Running)
	require.NoError(t, m.StopAll())
}
