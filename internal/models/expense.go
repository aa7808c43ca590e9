package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type MiscExpense struct {
	bun.BaseModel `bun:"table:misc_expenses"`

	ID          string          `bun:"id,pk" json:"id"`
	AgencyID    string          `bun:"agency_id,notnull" json:"agency_id"`
	Title       string          `bun:"title,notnull" json:"title"`
	Amount      decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount"`
	ExpenseDate time.Time       `bun:"expense_date,notnull" json:"expense_date"`
	Description string          `bun:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"created_at"`
}

type AgentPayment struct {
	bun.BaseModel `bun:"table:agent_payments"`

	ID         string          `bun:"id,pk" json:"id"`
	AgencyID   string          `bun:"agency_id,notnull" json:"agency_id"`
	AgentName  string          `bun:"agent_name,notnull" json:"agent_name"`
	AmountPaid decimal.Decimal `bun:"amount_paid,type:decimal(12,2),notnull" json:"amount_paid"`
	CreatedAt  time.Time       `bun:"created_at,notnull" json:"created_at"`
}

type MiscExpenseUpdate struct {
	Title       *string          `json:"title"`
	Amount      *decimal.Decimal `json:"amount"`
	ExpenseDate *time.Time       `json:"expense_date"`
	Description *string          `json:"description"`
}
