package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

type notificationFixture struct {
	dispatcher    dispatcher.Dispatcher
	notifications *mockNotificationRepo
	realtime      *mockRealtime
	metrics       *mockMetrics
	logger        *mockLogger
	service       NotificationService
}

func newNotificationFixture(users *mockUserRepo, expenses *mockExpenseRepo) *notificationFixture {
	f := &notificationFixture{
		dispatcher:    dispatcher.NewDispatcher(),
		notifications: &mockNotificationRepo{},
		realtime:      &mockRealtime{},
		metrics:       &mockMetrics{},
		logger:        &mockLogger{},
	}
	f.service = NewNotificationService(f.dispatcher, users, expenses, f.notifications, f.realtime, f.metrics, f.logger)
	return f
}

// drain waits for the async handlers
func (f *notificationFixture) drain(t *testing.T) {
	t.Helper()
	if err := f.dispatcher.Close(time.Second); err != nil {
		t.Fatalf("dispatcher close: %v", err)
	}
}

func TestNotificationService_ManagersAndAdmins(t *testing.T) {
	users := &mockUserRepo{
		listByRolesFunc: func(ctx context.Context, companyID int64, roles ...string) ([]*entity.User, error) {
			if companyID != 1 {
				t.Errorf("companyID = %d, want 1", companyID)
			}
			if len(roles) != 2 {
				t.Errorf("roles = %v", roles)
			}
			return []*entity.User{
				{ID: "m1", Role: entity.RoleManager},
				{ID: "a1", Role: entity.RoleAdmin},
				{ID: "emp-1", Role: entity.RoleManager},
			}, nil
		},
	}
	f := newNotificationFixture(users, &mockExpenseRepo{})

	f.service.Notify(context.Background(), entity.NotificationRequest{
		CompanyID: 1,
		EventType: event.TypeExpenseSubmitted.String(),
		Audience:  entity.AudienceManagersAdmins,
		ExpenseID: 10,
		ActorID:   "emp-1",
		Payload: map[string]interface{}{
			"submitter_id":  "emp-1",
			"amount":        "120.5",
			"currency":      "USD",
			"workflow_name": "Default",
		},
	})
	f.drain(t)

	rows := f.notifications.rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	recipients := map[string]bool{}
	for _, n := range rows {
		recipients[n.RecipientID] = true
		if n.Status != entity.NotificationStatusPending {
			t.Errorf("Status = %s, want PENDING", n.Status)
		}
		if !strings.Contains(n.Message, "#10") || !strings.Contains(n.Message, "120.5 USD") {
			t.Errorf("Message = %q", n.Message)
		}
		var evt event.Event
		if err := json.Unmarshal([]byte(n.Payload), &evt); err != nil {
			t.Fatalf("payload is not an event: %v", err)
		}
		if evt.Type != event.TypeExpenseSubmitted || evt.ExpenseID != 10 {
			t.Errorf("payload event = %+v", evt)
		}
	}
	// the acting manager is still a manager recipient
	for _, id := range []string{"m1", "a1", "emp-1"} {
		if !recipients[id] {
			t.Errorf("missing notification for %s", id)
		}
	}
	if f.realtime.count() != 1 {
		t.Errorf("realtime pushes = %d, want 1", f.realtime.count())
	}
	if f.metrics.events[event.TypeExpenseSubmitted.String()] != 1 {
		t.Errorf("metrics = %v", f.metrics.events)
	}
}

func TestNotificationService_Submitter(t *testing.T) {
	expenses := &mockExpenseRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.Expense, error) {
			return &entity.Expense{ID: id, CompanyID: 1, SubmitterID: "emp-7"}, nil
		},
	}
	f := newNotificationFixture(&mockUserRepo{}, expenses)

	f.service.Notify(context.Background(), entity.NotificationRequest{
		CompanyID: 1,
		EventType: event.TypeExpenseStatusUpdated.String(),
		Audience:  entity.AudienceSubmitter,
		ExpenseID: 10,
		ActorID:   "m1",
		Payload:   map[string]interface{}{"status": "approved"},
	})
	f.drain(t)

	rows := f.notifications.rows()
	if len(rows) != 1 || rows[0].RecipientID != "emp-7" {
		t.Fatalf("rows = %+v", rows)
	}
	if !strings.Contains(rows[0].Message, "approved") {
		t.Errorf("Message = %q", rows[0].Message)
	}
}

func TestNotificationService_RealtimeOnly(t *testing.T) {
	f := newNotificationFixture(&mockUserRepo{}, &mockExpenseRepo{})

	f.service.Notify(context.Background(), entity.NotificationRequest{
		CompanyID: 1,
		EventType: event.TypeApprovalDecided.String(),
		ExpenseID: 10,
	})
	f.drain(t)

	if n := len(f.notifications.rows()); n != 0 {
		t.Errorf("rows = %d, want 0 without audience", n)
	}
	if f.realtime.count() != 1 {
		t.Errorf("realtime pushes = %d, want 1", f.realtime.count())
	}
}

func TestNotificationService_Failures(t *testing.T) {
	t.Run("unknown event type is dropped", func(t *testing.T) {
		f := newNotificationFixture(&mockUserRepo{}, &mockExpenseRepo{})

		f.service.Notify(context.Background(), entity.NotificationRequest{CompanyID: 1, EventType: "expense.archived"})
		f.drain(t)

		if f.realtime.count() != 0 {
			t.Error("unknown events should not be dispatched")
		}
		if f.logger.errorCount() != 1 {
			t.Errorf("error count = %d, want 1", f.logger.errorCount())
		}
	})

	t.Run("missing expense does not affect other handlers", func(t *testing.T) {
		expenses := &mockExpenseRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Expense, error) {
				return nil, approval.ErrNotFound
			},
		}
		f := newNotificationFixture(&mockUserRepo{}, expenses)

		f.service.Notify(context.Background(), entity.NotificationRequest{
			CompanyID: 1,
			EventType: event.TypeExpenseStatusUpdated.String(),
			Audience:  entity.AudienceSubmitter,
			ExpenseID: 404,
		})
		f.drain(t)

		if n := len(f.notifications.rows()); n != 0 {
			t.Errorf("rows = %d, want 0", n)
		}
		if f.realtime.count() != 1 {
			t.Error("realtime push should still happen")
		}
	})
}

func TestBuildMessage(t *testing.T) {
	tests := []struct {
		name string
		evt  *event.Event
		want string
	}{
		{
			name: "decision",
			evt: event.NewEvent(event.TypeApprovalDecided, 1, 3, map[string]interface{}{
				"approver_id": "m1",
				"decision":    "rejected",
			}),
			want: "m1 rejected expense #3",
		},
		{
			name: "workflow change",
			evt:  event.NewEvent(event.TypeWorkflowChanged, 1, 0, nil),
			want: "workflow.changed for expense #0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildMessage(tt.evt); got != tt.want {
				t.Errorf("buildMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
