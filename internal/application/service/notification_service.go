package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Handler names registered on the dispatcher
const (
	HandlerOutbox   = "notification.outbox"
	HandlerRealtime = "notification.realtime"
	HandlerMetrics  = "notification.metrics"
)

// NotificationService turns notification requests into dispatched events.
// Subscribed handlers write outbox rows for the requested audience, push
// the event to realtime clients and count it.
type NotificationService interface {
	port.NotificationSink
}

type notificationServiceImpl struct {
	dispatcher    dispatcher.Dispatcher
	users         port.UserRepository
	expenses      port.ExpenseRepository
	notifications port.NotificationRepository
	realtime      port.RealtimePublisher
	metrics       port.MetricsRecorder
	logger        Logger
}

// NewNotificationService creates a NotificationService and subscribes its
// handlers on d
func NewNotificationService(
	d dispatcher.Dispatcher,
	users port.UserRepository,
	expenses port.ExpenseRepository,
	notifications port.NotificationRepository,
	realtime port.RealtimePublisher,
	metrics port.MetricsRecorder,
	logger Logger,
) NotificationService {
	s := &notificationServiceImpl{
		dispatcher:    d,
		users:         users,
		expenses:      expenses,
		notifications: notifications,
		realtime:      realtime,
		metrics:       metrics,
		logger:        logger,
	}

	d.Subscribe(dispatcher.AllEvents, HandlerOutbox, s.handleOutbox)
	if realtime != nil {
		d.Subscribe(dispatcher.AllEvents, HandlerRealtime, s.handleRealtime)
	}
	if metrics != nil {
		d.Subscribe(dispatcher.AllEvents, HandlerMetrics, s.handleMetrics)
	}
	return s
}

// Notify publishes the request as an event without waiting for handlers
func (s *notificationServiceImpl) Notify(ctx context.Context, req entity.NotificationRequest) {
	evt := event.NewEvent(event.Type(req.EventType), req.CompanyID, req.ExpenseID, req.Payload)
	evt.ActorID = req.ActorID
	evt.Audience = req.Audience

	if !evt.Type.IsValid() {
		s.logger.Error("Dropping notification with unknown event type", "event_type", req.EventType)
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}

// handleOutbox writes one PENDING row per recipient of the event's audience
func (s *notificationServiceImpl) handleOutbox(ctx context.Context, evt *event.Event) error {
	if evt.Audience == "" {
		return nil
	}

	recipients, err := s.resolveAudience(ctx, evt)
	if err != nil {
		return fmt.Errorf("resolve audience %s: %w", evt.Audience, err)
	}
	if len(recipients) == 0 {
		s.logger.Info("No recipients for notification",
			"event_type", evt.Type,
			"audience", evt.Audience,
			"company_id", evt.CompanyID,
		)
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	message := buildMessage(evt)
	now := time.Now()

	for _, recipientID := range recipients {
		n := &entity.Notification{
			CompanyID:   evt.CompanyID,
			RecipientID: recipientID,
			EventType:   evt.Type.String(),
			Message:     message,
			Payload:     string(payload),
			Status:      entity.NotificationStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			return fmt.Errorf("create notification for %s: %w", recipientID, err)
		}
	}

	s.logger.Info("Notifications queued",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"recipients", len(recipients),
	)
	return nil
}

func (s *notificationServiceImpl) resolveAudience(ctx context.Context, evt *event.Event) ([]string, error) {
	switch evt.Audience {
	case entity.AudienceManagersAdmins:
		users, err := s.users.ListByRoles(ctx, evt.CompanyID, entity.RoleManager, entity.RoleAdmin)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		return ids, nil

	case entity.AudienceSubmitter:
		expense, err := s.expenses.GetByID(ctx, evt.ExpenseID)
		if err != nil {
			return nil, err
		}
		return []string{expense.SubmitterID}, nil
	}
	return nil, fmt.Errorf("unknown audience %q", evt.Audience)
}

func (s *notificationServiceImpl) handleRealtime(ctx context.Context, evt *event.Event) error {
	delivered := s.realtime.Publish(evt.CompanyID, evt)
	if delivered > 0 {
		s.logger.Info("Event pushed to realtime clients",
			"event_type", evt.Type,
			"company_id", evt.CompanyID,
			"clients", delivered,
		)
	}
	return nil
}

func (s *notificationServiceImpl) handleMetrics(ctx context.Context, evt *event.Event) error {
	s.metrics.EventPublished(evt.Type.String())
	return nil
}

// buildMessage renders the chat text for an event
func buildMessage(evt *event.Event) string {
	switch evt.Type {
	case event.TypeExpenseSubmitted:
		return fmt.Sprintf(
			"Expense #%d awaits approval\n\nSubmitted by: %s\nAmount: %s %s\nDescription: %s\nWorkflow: %s",
			evt.ExpenseID,
			evt.GetPayloadString("submitter_id"),
			evt.GetPayloadString("amount"),
			evt.GetPayloadString("currency"),
			evt.GetPayloadString("description"),
			evt.GetPayloadString("workflow_name"),
		)
	case event.TypeExpenseStatusUpdated:
		return fmt.Sprintf(
			"Your expense #%d was %s\n\nAmount: %s %s\nDescription: %s",
			evt.ExpenseID,
			evt.GetPayloadString("status"),
			evt.GetPayloadString("amount"),
			evt.GetPayloadString("currency"),
			evt.GetPayloadString("description"),
		)
	case event.TypeApprovalDecided:
		return fmt.Sprintf(
			"%s %s expense #%d",
			evt.GetPayloadString("approver_id"),
			evt.GetPayloadString("decision"),
			evt.ExpenseID,
		)
	}
	return fmt.Sprintf("%s for expense #%d", evt.Type, evt.ExpenseID)
}
