package entity

import "time"

// AuditEntry records one mutation for the audit trail
type AuditEntry struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	EntityType  string    `json:"entity_type"`
	EntityID    int64     `json:"entity_id"`
	Action      string    `json:"action"`
	ActorID     string    `json:"actor_id"`
	BeforeState string    `json:"before_state,omitempty"`
	AfterState  string    `json:"after_state,omitempty"`
	Details     string    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
