package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Expense is a claim submitted by an employee for approval
type Expense struct {
	ID                   int64           `json:"id"`
	CompanyID            int64           `json:"company_id"`
	SubmitterID          string          `json:"submitter_id"`
	Description          string          `json:"description"`
	Category             string          `json:"category"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	AmountInBaseCurrency decimal.Decimal `json:"amount_in_base_currency"`
	Status               workflow.State  `json:"status"`
	SubmittedAt          *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ConvertToBase recomputes AmountInBaseCurrency from Amount and ExchangeRate
func (e *Expense) ConvertToBase() {
	e.AmountInBaseCurrency = e.Amount.Mul(e.ExchangeRate).Round(2)
}

// IsTerminal returns true once the expense has been approved or rejected
func (e *Expense) IsTerminal() bool {
	return e.Status.IsTerminal()
}
