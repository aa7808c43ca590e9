package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	EntryCredit = "Credit"
	EntryDebit  = "Debit"
)

type LedgerEntry struct {
	bun.BaseModel `bun:"table:ledger_entries"`

	ID                string          `bun:"id,pk" json:"id"`
	AgencyID          string          `bun:"agency_id,notnull" json:"agency_id"`
	CustomerID        *string         `bun:"customer_id" json:"customer_id,omitempty"`
	BookingID         *string         `bun:"booking_id" json:"booking_id,omitempty"`
	Type              string          `bun:"type,notnull" json:"type"`
	Amount            decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount"`
	UnallocatedAmount decimal.Decimal `bun:"unallocated_amount,type:decimal(12,2),notnull" json:"unallocated_amount"`
	Date              time.Time       `bun:"date,notnull" json:"date"`
	Description       string          `bun:"description" json:"description,omitempty"`
	SlipNumber        string          `bun:"slip_number" json:"slip_number,omitempty"`
	CreatedAt         time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// LedgerAllocation records how much of a credit entry landed on one
// sales booking, so the credit can be reverted exactly.
type LedgerAllocation struct {
	bun.BaseModel `bun:"table:ledger_allocations"`

	ID        string          `bun:"id,pk" json:"id"`
	EntryID   string          `bun:"entry_id,notnull" json:"entry_id"`
	BookingID string          `bun:"booking_id,notnull" json:"booking_id"`
	Amount    decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount"`
	CreatedAt time.Time       `bun:"created_at,notnull" json:"created_at"`
}

type LedgerEntryRequest struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        *time.Time      `json:"date"`
	Description string          `json:"description"`
	SlipNumber  string          `json:"slip_number"`
	CustomerID  *string         `json:"customer_id"`
	BookingID   *string         `json:"booking_id"`
}

// CreditResult describes where an applied credit ended up.
type CreditResult struct {
	Entry       LedgerEntry        `json:"entry"`
	Allocations []LedgerAllocation `json:"allocations"`
}

type DebitTotals struct {
	LedgerDebits  decimal.Decimal `json:"ledger_debits"`
	AgentPayments decimal.Decimal `json:"agent_payments"`
	MiscExpenses  decimal.Decimal `json:"misc_expenses"`
	Total         decimal.Decimal `json:"total"`
}

type AccountingStats struct {
	TodaySales    decimal.Decimal `json:"today_sales"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

// DateRange is an inclusive optional window over entry dates.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}
