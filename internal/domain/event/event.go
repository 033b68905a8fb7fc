package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event scoped to one company
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	CompanyID     int64                  `json:"company_id"`
	ExpenseID     int64                  `json:"expense_id,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Audience      string                 `json:"audience,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event with a fresh ID and correlation ID
func NewEvent(eventType Type, companyID, expenseID int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, companyID, expenseID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain
func NewEventWithCorrelation(eventType Type, companyID, expenseID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		CompanyID:     companyID,
		ExpenseID:     expenseID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set in the payload
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	copied := *e
	copied.Payload = payload
	return &copied
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload.
// JSON-decoded numbers arrive as float64 and are truncated.
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
