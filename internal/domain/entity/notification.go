package entity

import "time"

// Notification is an outbox row addressed to one recipient
type Notification struct {
	ID           int64      `json:"id"`
	CompanyID    int64      `json:"company_id"`
	RecipientID  string     `json:"recipient_id"`
	EventType    string     `json:"event_type"`
	Message      string     `json:"message"`
	Payload      string     `json:"payload"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NotificationRequest asks for an event to be delivered to an audience.
// Payload values must be JSON-encodable.
type NotificationRequest struct {
	CompanyID int64                  `json:"company_id"`
	EventType string                 `json:"event_type"`
	Audience  string                 `json:"audience"`
	ExpenseID int64                  `json:"expense_id"`
	ActorID   string                 `json:"actor_id"`
	Payload   map[string]interface{} `json:"payload"`
}
