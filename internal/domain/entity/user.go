package entity

import "time"

// User is a member of a company directory
type User struct {
	ID         string    `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	LarkOpenID string    `json:"lark_open_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Actor is the identity on whose behalf an operation runs
type Actor struct {
	UserID    string `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	Role      string `json:"role"`
}

// IsAdmin returns true for company administrators
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanApprove returns true for roles that may appear in approval queues
func (a Actor) CanApprove() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}
