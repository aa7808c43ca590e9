package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-marketplace/internal/models"

	"github.com/uptrace/bun"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// sortColumns whitelists sortable fields.
var sortColumns = map[string]string{
	"created_at":     "created_at",
	"price_per_seat": "price_per_seat",
	"date":           "date",
	"airline":        "airline",
	"sector":         "sector",
}

type DB struct {
	Bun bun.IDB
}

// ---------------- TICKET GROUPS ----------------

// CreateTicketGroup inserts a lot as given; callers set defaults.
func (d *DB) CreateTicketGroup(ctx context.Context, group *models.TicketGroup) error {
	_, err := d.Bun.NewInsert().Model(group).Exec(ctx)
	if err != nil {
		return models.NewPersistenceError("insert ticket group", err)
	}
	return nil
}

// GetTicketGroupByID fetches one lot.
func (d *DB) GetTicketGroupByID(ctx context.Context, id string) (*models.TicketGroup, error) {
	var group models.TicketGroup
	err := d.Bun.NewSelect().
		Model(&group).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket group %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("get ticket group", err)
	}
	return &group, nil
}

// ListTicketGroups applies filters, viewer scoping, sorting and paging.
func (d *DB) ListTicketGroups(ctx context.Context, f models.TicketGroupFilter) (*models.TicketGroupPage, error) {
	page, limit := normalizePaging(f.Page, f.Limit)

	var groups []models.TicketGroup
	q := d.Bun.NewSelect().Model(&groups)

	if f.Sector != "" {
		q = q.Where("LOWER(sector) LIKE ?", "%"+strings.ToLower(f.Sector)+"%")
	}
	if f.Airline != "" {
		q = q.Where("LOWER(airline) LIKE ?", "%"+strings.ToLower(f.Airline)+"%")
	}
	if f.TravelType != "" {
		q = q.Where("travel_type = ?", f.TravelType)
	}
	if f.Date != nil {
		day := truncateDay(*f.Date)
		q = q.Where("date >= ?", day).Where("date < ?", day.AddDate(0, 0, 1))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OwnedOnly {
		q = q.Where("agency_id = ?", f.ViewerAgencyID)
	} else if !f.ViewerIsAdmin {
		today := truncateDay(f.Today)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("status = ?", models.TicketGroupActive).
						Where("date >= ?", today).
						Where("available_seats > 0")
				}).
				WhereOr("agency_id = ?", f.ViewerAgencyID)
		})
	}

	q = q.OrderExpr(orderClause(f.SortBy, f.SortOrder)).
		Order("id").
		Limit(limit).
		Offset((page - 1) * limit)

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list ticket groups", err)
	}
	if groups == nil {
		groups = []models.TicketGroup{}
	}
	return &models.TicketGroupPage{TicketGroups: groups, Total: total, Page: page, Limit: limit}, nil
}

// UpdateTicketGroup writes the non-nil fields. A new total shifts available
// seats by the same delta and clamps to [0, total] in the same statement, so
// seats held by bookings stay accounted for.
func (d *DB) UpdateTicketGroup(ctx context.Context, id string, upd models.TicketGroupUpdate, now time.Time) (*models.TicketGroup, error) {
	group := new(models.TicketGroup)
	q := d.Bun.NewUpdate().Model(group).Set("updated_at = ?", now)

	setString := func(column string, v *string) {
		if v != nil {
			q = q.Set("? = ?", bun.Ident(column), *v)
		}
	}
	setString("airline", upd.Airline)
	setString("sector", upd.Sector)
	setString("travel_type", upd.TravelType)
	setString("flight_no", upd.FlightNo)
	setString("departure_time", upd.DepartureTime)
	setString("arrival_time", upd.ArrivalTime)
	setString("return_flight_no", upd.ReturnFlightNo)
	setString("return_departure_time", upd.ReturnDepartureTime)
	setString("return_arrival_time", upd.ReturnArrivalTime)
	setString("baggage", upd.Baggage)

	if upd.Date != nil {
		q = q.Set("? = ?", bun.Ident("date"), *upd.Date)
	}
	if upd.ClearReturnDate {
		q = q.Set("return_date = NULL")
	} else if upd.ReturnDate != nil {
		q = q.Set("return_date = ?", *upd.ReturnDate)
	}
	if upd.Meal != nil {
		q = q.Set("meal = ?", *upd.Meal)
	}
	if upd.PricePerSeat != nil {
		q = q.Set("price_per_seat = ?", *upd.PricePerSeat)
	}
	if upd.TotalSeats != nil {
		n := *upd.TotalSeats
		q = q.Set("available_seats = CASE"+
			" WHEN available_seats + (? - total_seats) < 0 THEN 0"+
			" WHEN available_seats + (? - total_seats) > ? THEN ?"+
			" ELSE available_seats + (? - total_seats) END", n, n, n, n, n).
			Set("total_seats = ?", n)
	}

	err := q.Where("id = ?", id).Returning("*").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket group %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("update ticket group", err)
	}
	return group, nil
}

// SetTicketGroupStatus is idempotent.
func (d *DB) SetTicketGroupStatus(ctx context.Context, id, status string, now time.Time) (*models.TicketGroup, error) {
	group := new(models.TicketGroup)
	err := d.Bun.NewUpdate().
		Model(group).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket group %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewPersistenceError("set ticket group status", err)
	}
	return group, nil
}

// SeatCounts returns id, total and available seats of every lot.
func (d *DB) SeatCounts(ctx context.Context) ([]models.TicketGroup, error) {
	groups := []models.TicketGroup{}
	err := d.Bun.NewSelect().
		Model(&groups).
		Column("id", "agency_id", "total_seats", "available_seats", "status").
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, models.NewPersistenceError("list seat counts", err)
	}
	return groups, nil
}

// ---------------- STATS ----------------

// MarketplaceStats sums open seats over active lots and sold seats over
// confirmed bookings.
func (d *DB) MarketplaceStats(ctx context.Context) (*models.MarketplaceStats, error) {
	var stats models.MarketplaceStats
	err := d.Bun.NewSelect().
		Model((*models.TicketGroup)(nil)).
		ColumnExpr("COALESCE(SUM(available_seats), 0)").
		Where("status = ?", models.TicketGroupActive).
		Scan(ctx, &stats.ActiveTickets)
	if err != nil {
		return nil, models.NewPersistenceError("sum active seats", err)
	}
	err = d.Bun.NewSelect().
		Model((*models.TicketBooking)(nil)).
		ColumnExpr("COALESCE(SUM(seats_booked), 0)").
		Where("status = ?", models.BookingConfirmed).
		Scan(ctx, &stats.SoldTickets)
	if err != nil {
		return nil, models.NewPersistenceError("sum sold seats", err)
	}
	return &stats, nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// orderClause maps a sort field to SQL; unknown fields fall back to
// newest first.
func orderClause(sortBy, sortOrder string) string {
	if strings.HasPrefix(sortBy, "-") {
		sortBy = strings.TrimPrefix(sortBy, "-")
		sortOrder = "desc"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return "created_at DESC"
	}
	if strings.EqualFold(sortOrder, "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
