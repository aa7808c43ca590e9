package analytics

import (
	"context"
	"time"

	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// DB handles the read-only report queries.
type DB struct {
	Bun bun.IDB
}

// SellerBookings returns the bookings sold by an agency, created inside the
// range, oldest first.
func (db *DB) SellerBookings(ctx context.Context, agencyID string, r models.DateRange) ([]models.TicketBooking, error) {
	var bookings []models.TicketBooking
	q := db.Bun.NewSelect().
		Model(&bookings).
		Column("id", "ticket_group_id", "seats_booked", "total_price", "status", "created_at").
		Where("seller_agency_id = ?", agencyID)
	if r.Start != nil {
		q = q.Where("created_at >= ?", r.Start.UTC())
	}
	if r.End != nil {
		q = q.Where("created_at <= ?", r.End.UTC())
	}
	if err := q.Order("created_at ASC").Scan(ctx); err != nil {
		return nil, models.NewPersistenceError("list seller bookings", err)
	}
	return bookings, nil
}

// LedgerEntries returns an agency's entries dated inside the range.
func (db *DB) LedgerEntries(ctx context.Context, agencyID string, r models.DateRange) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := db.Bun.NewSelect().
		Model(&entries).
		Column("type", "amount", "date").
		Where("agency_id = ?", agencyID)
	if r.Start != nil {
		q = q.Where("date >= ?", r.Start.UTC())
	}
	if r.End != nil {
		q = q.Where("date <= ?", r.End.UTC())
	}
	if err := q.Order("date ASC").Scan(ctx); err != nil {
		return nil, models.NewPersistenceError("list ledger entries", err)
	}
	return entries, nil
}

// CustomerTotalsData is one customer's aggregate over sales bookings.
type CustomerTotalsData struct {
	CustomerID   string          `bun:"customer_id"`
	TotalSpend   decimal.Decimal `bun:"total_spend"`
	BookingCount int             `bun:"booking_count"`
	TotalBalance decimal.Decimal `bun:"total_balance"`
}

// TopCustomers ranks customers by the value of their sales bookings.
func (db *DB) TopCustomers(ctx context.Context, agencyID string, limit int) ([]CustomerTotalsData, error) {
	var rows []CustomerTotalsData
	err := db.Bun.NewSelect().
		Model((*models.SalesBooking)(nil)).
		ColumnExpr("customer_id").
		ColumnExpr("SUM(total_amount) AS total_spend").
		ColumnExpr("COUNT(*) AS booking_count").
		ColumnExpr("SUM(balance_due) AS total_balance").
		Where("agency_id = ?", agencyID).
		Group("customer_id").
		OrderExpr("total_spend DESC, customer_id ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, models.NewPersistenceError("rank customers", err)
	}
	return rows, nil
}

// Outstanding sums what customers still owe on open sales bookings.
func (db *DB) Outstanding(ctx context.Context, agencyID string) (decimal.Decimal, int, error) {
	var row struct {
		Total decimal.NullDecimal `bun:"total"`
		Count int                 `bun:"open_count"`
	}
	err := db.Bun.NewSelect().
		Model((*models.SalesBooking)(nil)).
		ColumnExpr("SUM(balance_due) AS total").
		ColumnExpr("COUNT(*) AS open_count").
		Where("agency_id = ?", agencyID).
		Where("balance_due > 0").
		Scan(ctx, &row)
	if err != nil {
		return decimal.Zero, 0, models.NewPersistenceError("sum outstanding", err)
	}
	if !row.Total.Valid {
		return decimal.Zero, row.Count, nil
	}
	return row.Total.Decimal.Round(2), row.Count, nil
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
