package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-marketplace/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

// ---------------- BOOKINGS ----------------

// CreateBooking inserts a booking. The error is returned unwrapped so the
// caller can spot a reference collision.
func (d *DB) CreateBooking(ctx context.Context, booking *models.TicketBooking) error {
	_, err := d.Bun.NewInsert().Model(booking).Exec(ctx)
	return err
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.TicketBooking, error) {
	return d.getBooking(ctx, "id = ?", id)
}

func (d *DB) GetBookingByReference(ctx context.Context, ref string) (*models.TicketBooking, error) {
	return d.getBooking(ctx, "booking_reference = ?", ref)
}

func (d *DB) getBooking(ctx context.Context, where string, arg string) (*models.TicketBooking, error) {
	var booking models.TicketBooking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", arg, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("get booking", err)
	}
	return &booking, nil
}

// ListBookings returns an agency's purchases or sales, newest first, with
// the ticket group details attached.
func (d *DB) ListBookings(ctx context.Context, agencyID, kind string) ([]models.TicketBooking, error) {
	column := "ticket_booking.buyer_agency_id"
	if kind == models.ListSales {
		column = "ticket_booking.seller_agency_id"
	}

	bookings := []models.TicketBooking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("TicketGroup").
		Where("? = ?", bun.Safe(column), agencyID).
		OrderExpr("ticket_booking.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list bookings", err)
	}
	return bookings, nil
}

// ---------------- STATUS ----------------

// UpdateStatusTx moves a booking from one status to another only if it is
// still in the expected status. A lost race reports the status that won.
func (d *DB) UpdateStatusTx(ctx context.Context, tx bun.IDB, id, from, to string, notifyBuyer bool, now time.Time) (*models.TicketBooking, error) {
	booking := new(models.TicketBooking)
	q := tx.NewUpdate().
		Model(booking).
		Set("status = ?", to).
		Set("updated_at = ?", now)
	if notifyBuyer {
		q = q.Set("is_read_by_buyer = ?", false)
	} else {
		q = q.Set("is_read_by_seller = ?", false)
	}
	err := q.Where("id = ?", id).
		Where("status = ?", from).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewPersistenceError("update booking status", err)
	}

	var current models.TicketBooking
	err = tx.NewSelect().Model(&current).Column("id", "status").Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("read booking status", err)
	}
	return nil, &models.InvalidTransitionError{Status: current.Status}
}

// ---------------- NOTIFICATION FLAGS ----------------

func (d *DB) UnreadCounts(ctx context.Context, agencyID string) (*models.UnreadCounts, error) {
	sales, err := d.Bun.NewSelect().
		Model((*models.TicketBooking)(nil)).
		Where("seller_agency_id = ?", agencyID).
		Where("is_read_by_seller = ?", false).
		Count(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("count unread sales", err)
	}
	purchases, err := d.Bun.NewSelect().
		Model((*models.TicketBooking)(nil)).
		Where("buyer_agency_id = ?", agencyID).
		Where("is_read_by_buyer = ?", false).
		Count(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("count unread purchases", err)
	}
	return &models.UnreadCounts{Sales: sales, Purchases: purchases}, nil
}

// MarkRead clears the unread flag on every sale or purchase of the agency.
func (d *DB) MarkRead(ctx context.Context, agencyID, kind string) (int64, error) {
	q := d.Bun.NewUpdate().Model((*models.TicketBooking)(nil))
	switch kind {
	case models.ListSales:
		q = q.Set("is_read_by_seller = ?", true).
			Where("seller_agency_id = ?", agencyID).
			Where("is_read_by_seller = ?", false)
	case models.ListPurchases:
		q = q.Set("is_read_by_buyer = ?", true).
			Where("buyer_agency_id = ?", agencyID).
			Where("is_read_by_buyer = ?", false)
	default:
		return 0, models.InvalidInput("unknown list type %q", kind)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, models.NewPersistenceError("mark read", err)
	}
	return res.RowsAffected()
}

// ---------------- RECONCILIATION ----------------

// HeldSeats sums seats of pending and confirmed bookings per ticket group.
func (d *DB) HeldSeats(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		TicketGroupID string `bun:"ticket_group_id"`
		Seats         int    `bun:"seats"`
	}
	err := d.Bun.NewSelect().
		Model((*models.TicketBooking)(nil)).
		Column("ticket_group_id").
		ColumnExpr("SUM(seats_booked) AS seats").
		Where("status IN (?)", bun.In([]string{models.BookingPending, models.BookingConfirmed})).
		Group("ticket_group_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, models.NewPersistenceError("sum held seats", err)
	}
	held := make(map[string]int, len(rows))
	for _, r := range rows {
		held[r.TicketGroupID] = r.Seats
	}
	return held, nil
}
