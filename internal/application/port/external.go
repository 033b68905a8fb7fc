package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationSink accepts notification requests from the orchestrator.
// Delivery is asynchronous; Notify does not report delivery failures.
type NotificationSink interface {
	Notify(ctx context.Context, req entity.NotificationRequest)
}

// AuditSink accepts audit entries. Failures are logged, never returned.
type AuditSink interface {
	Record(ctx context.Context, entry *entity.AuditEntry)
}

// MessageSender delivers a text message to a chat user
type MessageSender interface {
	SendText(ctx context.Context, openID, text string) (string, error)
}

// RealtimePublisher pushes events to connected clients of a company
type RealtimePublisher interface {
	Publish(companyID int64, evt *event.Event) int
}

// MetricsRecorder counts orchestrator outcomes
type MetricsRecorder interface {
	DecisionRecorded(decision string)
	VerdictReached(rule, verdict string)
	StatusTransition(from, to string)
	ConcurrencyConflict()
	EventPublished(eventType string)
	NotificationDelivered(status string)
}
