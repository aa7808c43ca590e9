package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

// ---------------- SALES BOOKINGS ----------------

func (d *DB) CreateSalesBooking(ctx context.Context, b *models.SalesBooking) error {
	if _, err := d.Bun.NewInsert().Model(b).Exec(ctx); err != nil {
		return models.NewPersistenceError("create sales booking", err)
	}
	return nil
}

func (d *DB) GetSalesBooking(ctx context.Context, agencyID, id string) (*models.SalesBooking, error) {
	return d.GetSalesBookingTx(ctx, d.Bun, agencyID, id)
}

// GetSalesBookingTx reads one of an agency's sales bookings.
func (d *DB) GetSalesBookingTx(ctx context.Context, tx bun.IDB, agencyID, id string) (*models.SalesBooking, error) {
	var b models.SalesBooking
	err := tx.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Where("agency_id = ?", agencyID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sales booking %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("get sales booking", err)
	}
	return &b, nil
}

// OutstandingTx lists a customer's bookings that still owe money, oldest
// first with id as tie-break.
func (d *DB) OutstandingTx(ctx context.Context, tx bun.IDB, agencyID, customerID string) ([]models.SalesBooking, error) {
	bookings := []models.SalesBooking{}
	err := tx.NewSelect().
		Model(&bookings).
		Where("agency_id = ?", agencyID).
		Where("customer_id = ?", customerID).
		Where("balance_due > 0").
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list outstanding bookings", err)
	}
	return bookings, nil
}

// ListUnpaid returns every booking of the agency with a positive balance.
func (d *DB) ListUnpaid(ctx context.Context, agencyID string) ([]models.SalesBooking, error) {
	bookings := []models.SalesBooking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("agency_id = ?", agencyID).
		Where("balance_due > 0").
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list unpaid bookings", err)
	}
	return bookings, nil
}

// SaveSalesBookingTx writes the booking's financial fields if nobody else
// has written since it was read. On success b.Version is the new version.
func (d *DB) SaveSalesBookingTx(ctx context.Context, tx bun.IDB, b *models.SalesBooking, now time.Time) error {
	b.Recompute()
	res, err := tx.NewUpdate().
		Model((*models.SalesBooking)(nil)).
		Set("total_amount = ?", b.TotalAmount).
		Set("paid_amount = ?", b.PaidAmount).
		Set("balance_due = ?", b.BalanceDue).
		Set("status = ?", b.Status).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", b.ID).
		Where("version = ?", b.Version).
		Exec(ctx)
	if err != nil {
		return models.NewPersistenceError("save sales booking", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewPersistenceError("save sales booking", err)
	}
	if n == 0 {
		return fmt.Errorf("sales booking %s at version %d: %w", b.ID, b.Version, models.ErrConcurrentUpdate)
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

// ---------------- LEDGER ENTRIES ----------------

func (d *DB) InsertEntryTx(ctx context.Context, tx bun.IDB, e *models.LedgerEntry) error {
	if _, err := tx.NewInsert().Model(e).Exec(ctx); err != nil {
		return models.NewPersistenceError("insert ledger entry", err)
	}
	return nil
}

func (d *DB) UpdateEntryTx(ctx context.Context, tx bun.IDB, e *models.LedgerEntry) error {
	_, err := tx.NewUpdate().
		Model(e).
		Column("customer_id", "booking_id", "type", "amount", "unallocated_amount", "date", "description", "slip_number").
		WherePK().
		Exec(ctx)
	if err != nil {
		return models.NewPersistenceError("update ledger entry", err)
	}
	return nil
}

func (d *DB) DeleteEntryTx(ctx context.Context, tx bun.IDB, id string) error {
	if _, err := tx.NewDelete().Model((*models.LedgerEntry)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return models.NewPersistenceError("delete ledger entry", err)
	}
	return nil
}

func (d *DB) GetEntry(ctx context.Context, agencyID, id string) (*models.LedgerEntry, error) {
	return d.GetEntryTx(ctx, d.Bun, agencyID, id)
}

func (d *DB) GetEntryTx(ctx context.Context, tx bun.IDB, agencyID, id string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.NewSelect().
		Model(&e).
		Where("id = ?", id).
		Where("agency_id = ?", agencyID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger entry %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("get ledger entry", err)
	}
	return &e, nil
}

// ListEntries returns an agency's entries, newest first. An empty entryType
// lists both kinds.
func (d *DB) ListEntries(ctx context.Context, agencyID, entryType string, r models.DateRange) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	q := d.Bun.NewSelect().
		Model(&entries).
		Where("agency_id = ?", agencyID)
	if entryType != "" {
		q = q.Where("type = ?", entryType)
	}
	q = inRange(q, "date", r)
	if err := q.Order("date DESC", "created_at DESC").Scan(ctx); err != nil {
		return nil, models.NewPersistenceError("list ledger entries", err)
	}
	return entries, nil
}

// ---------------- ALLOCATIONS ----------------

func (d *DB) InsertAllocationsTx(ctx context.Context, tx bun.IDB, allocs []models.LedgerAllocation) error {
	if len(allocs) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&allocs).Exec(ctx); err != nil {
		return models.NewPersistenceError("insert allocations", err)
	}
	return nil
}

func (d *DB) Allocations(ctx context.Context, entryID string) ([]models.LedgerAllocation, error) {
	return d.AllocationsTx(ctx, d.Bun, entryID)
}

func (d *DB) AllocationsTx(ctx context.Context, tx bun.IDB, entryID string) ([]models.LedgerAllocation, error) {
	allocs := []models.LedgerAllocation{}
	err := tx.NewSelect().
		Model(&allocs).
		Where("entry_id = ?", entryID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list allocations", err)
	}
	return allocs, nil
}

func (d *DB) DeleteAllocationsTx(ctx context.Context, tx bun.IDB, entryID string) error {
	if _, err := tx.NewDelete().Model((*models.LedgerAllocation)(nil)).Where("entry_id = ?", entryID).Exec(ctx); err != nil {
		return models.NewPersistenceError("delete allocations", err)
	}
	return nil
}

// ---------------- TOTALS ----------------

// SumEntries adds up an agency's entries of one type inside the range.
func (d *DB) SumEntries(ctx context.Context, agencyID, entryType string, r models.DateRange) (decimal.Decimal, error) {
	q := d.Bun.NewSelect().
		Model((*models.LedgerEntry)(nil)).
		Where("agency_id = ?", agencyID).
		Where("type = ?", entryType)
	return sum(ctx, inRange(q, "date", r), "amount", "sum ledger entries")
}

func (d *DB) SumAgentPayments(ctx context.Context, agencyID string, r models.DateRange) (decimal.Decimal, error) {
	q := d.Bun.NewSelect().
		Model((*models.AgentPayment)(nil)).
		Where("agency_id = ?", agencyID)
	return sum(ctx, inRange(q, "created_at", r), "amount_paid", "sum agent payments")
}

func (d *DB) SumMiscExpenses(ctx context.Context, agencyID string, r models.DateRange) (decimal.Decimal, error) {
	q := d.Bun.NewSelect().
		Model((*models.MiscExpense)(nil)).
		Where("agency_id = ?", agencyID)
	return sum(ctx, inRange(q, "expense_date", r), "amount", "sum misc expenses")
}

// SumSalesCreatedSince totals the value of sales bookings opened since t.
func (d *DB) SumSalesCreatedSince(ctx context.Context, agencyID string, t time.Time) (decimal.Decimal, error) {
	q := d.Bun.NewSelect().
		Model((*models.SalesBooking)(nil)).
		Where("agency_id = ?", agencyID).
		Where("created_at >= ?", t)
	return sum(ctx, q, "total_amount", "sum sales")
}

func sum(ctx context.Context, q *bun.SelectQuery, column, op string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := q.ColumnExpr("SUM(?)", bun.Ident(column)).Scan(ctx, &total)
	if err != nil {
		return decimal.Zero, models.NewPersistenceError(op, err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	// SQLite sums NUMERIC columns as floats.
	return total.Decimal.Round(2), nil
}

func inRange(q *bun.SelectQuery, column string, r models.DateRange) *bun.SelectQuery {
	if r.Start != nil {
		q = q.Where("? >= ?", bun.Ident(column), r.Start.UTC())
	}
	if r.End != nil {
		q = q.Where("? <= ?", bun.Ident(column), r.End.UTC())
	}
	return q
}

// ---------------- EXPENSES ----------------

func (d *DB) CreateMiscExpense(ctx context.Context, e *models.MiscExpense) error {
	if _, err := d.Bun.NewInsert().Model(e).Exec(ctx); err != nil {
		return models.NewPersistenceError("create misc expense", err)
	}
	return nil
}

func (d *DB) GetMiscExpense(ctx context.Context, agencyID, id string) (*models.MiscExpense, error) {
	var e models.MiscExpense
	err := d.Bun.NewSelect().
		Model(&e).
		Where("id = ?", id).
		Where("agency_id = ?", agencyID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("misc expense %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("get misc expense", err)
	}
	return &e, nil
}

func (d *DB) ListMiscExpenses(ctx context.Context, agencyID string) ([]models.MiscExpense, error) {
	expenses := []models.MiscExpense{}
	err := d.Bun.NewSelect().
		Model(&expenses).
		Where("agency_id = ?", agencyID).
		Order("expense_date DESC", "created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list misc expenses", err)
	}
	return expenses, nil
}

func (d *DB) UpdateMiscExpense(ctx context.Context, e *models.MiscExpense) error {
	_, err := d.Bun.NewUpdate().
		Model(e).
		Column("title", "amount", "expense_date", "description").
		WherePK().
		Exec(ctx)
	if err != nil {
		return models.NewPersistenceError("update misc expense", err)
	}
	return nil
}

func (d *DB) DeleteMiscExpense(ctx context.Context, agencyID, id string) error {
	return d.deleteOwned(ctx, (*models.MiscExpense)(nil), agencyID, id, "misc expense")
}

func (d *DB) CreateAgentPayment(ctx context.Context, p *models.AgentPayment) error {
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		return models.NewPersistenceError("create agent payment", err)
	}
	return nil
}

func (d *DB) ListAgentPayments(ctx context.Context, agencyID string) ([]models.AgentPayment, error) {
	payments := []models.AgentPayment{}
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("agency_id = ?", agencyID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list agent payments", err)
	}
	return payments, nil
}

func (d *DB) DeleteAgentPayment(ctx context.Context, agencyID, id string) error {
	return d.deleteOwned(ctx, (*models.AgentPayment)(nil), agencyID, id, "agent payment")
}

func (d *DB) deleteOwned(ctx context.Context, model interface{}, agencyID, id, what string) error {
	res, err := d.Bun.NewDelete().
		Model(model).
		Where("id = ?", id).
		Where("agency_id = ?", agencyID).
		Exec(ctx)
	if err != nil {
		return models.NewPersistenceError("delete "+what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return nil
}
