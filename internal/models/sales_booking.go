package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// SalesBooking is an agency's own booking sold to one of its customers.
// BalanceDue is recomputed from TotalAmount and PaidAmount on every write
// and may go negative when a customer overpays.
type SalesBooking struct {
	bun.BaseModel `bun:"table:sales_bookings"`

	ID            string          `bun:"id,pk" json:"id"`
	AgencyID      string          `bun:"agency_id,notnull" json:"agency_id"`
	CustomerID    string          `bun:"customer_id,notnull" json:"customer_id"`
	BookingNumber string          `bun:"booking_number,notnull" json:"booking_number"`
	TotalAmount   decimal.Decimal `bun:"total_amount,type:decimal(12,2),notnull" json:"total_amount"`
	PaidAmount    decimal.Decimal `bun:"paid_amount,type:decimal(12,2),notnull" json:"paid_amount"`
	BalanceDue    decimal.Decimal `bun:"balance_due,type:decimal(12,2),notnull" json:"balance_due"`
	Status        string          `bun:"status,notnull,default:'open'" json:"status"`
	Version       int64           `bun:"version,notnull,default:0" json:"version"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// Recompute sets BalanceDue from the current totals and marks the booking
// paid once nothing is owed.
func (b *SalesBooking) Recompute() {
	b.BalanceDue = b.TotalAmount.Sub(b.PaidAmount)
	if b.BalanceDue.IsPositive() {
		b.Status = SalesBookingOpen
	} else {
		b.Status = SalesBookingPaid
	}
}

const (
	SalesBookingOpen = "open"
	SalesBookingPaid = "paid"
)

type SalesBookingRequest struct {
	CustomerID    string          `json:"customer_id"`
	BookingNumber string          `json:"booking_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}
