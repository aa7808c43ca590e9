// Package reservation owns every change to a ticket group's available seats.
// Reserve and release are single conditional statements so concurrent
// callers can never oversell a lot or push it past its capacity.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/metrics"
	"ms-marketplace/internal/models"

	"github.com/uptrace/bun"
)

// diagnoseAttempts bounds how often a reserve is retried when the follow-up
// read shows enough seats (another request released in between).
const diagnoseAttempts = 3

type Engine struct {
	DB       bun.IDB
	Logger   *logger.Logger
	MaxSeats int
	Now      func() time.Time
}

func NewEngine(db bun.IDB, log *logger.Logger, maxSeats int) *Engine {
	return &Engine{DB: db, Logger: log, MaxSeats: maxSeats, Now: time.Now}
}

// Reserve atomically takes seats from an active lot and returns the lot as
// it is after the decrement.
func (e *Engine) Reserve(ctx context.Context, ticketGroupID string, seats int) (*models.TicketGroup, error) {
	return e.ReserveTx(ctx, e.DB, ticketGroupID, seats)
}

// ReserveTx is Reserve on a caller supplied connection or transaction.
func (e *Engine) ReserveTx(ctx context.Context, db bun.IDB, ticketGroupID string, seats int) (*models.TicketGroup, error) {
	if err := e.validate(seats); err != nil {
		metrics.Reservations.WithLabelValues("invalid").Inc()
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		group, err := e.decrement(ctx, db, ticketGroupID, seats)
		if err == nil {
			metrics.Reservations.WithLabelValues("reserved").Inc()
			e.Logger.LogReservation("RESERVE", ticketGroupID, seats, fmt.Sprintf("%d seats left", group.AvailableSeats))
			return group, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			metrics.Reservations.WithLabelValues("error").Inc()
			return nil, models.NewPersistenceError("reserve seats", err)
		}

		err = e.diagnose(ctx, db, ticketGroupID, seats)
		var short *models.InsufficientSeatsError
		if errors.As(err, &short) && short.Available >= seats && attempt < diagnoseAttempts {
			continue
		}
		metrics.Reservations.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
}

func (e *Engine) decrement(ctx context.Context, db bun.IDB, ticketGroupID string, seats int) (*models.TicketGroup, error) {
	group := new(models.TicketGroup)
	err := db.NewUpdate().
		Model(group).
		Set("available_seats = available_seats - ?", seats).
		Set("updated_at = ?", e.Now().UTC()).
		Where("id = ?", ticketGroupID).
		Where("status = ?", models.TicketGroupActive).
		Where("available_seats >= ?", seats).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// diagnose explains why the conditional update matched nothing. Order
// matters: a missing lot beats a closed one, which beats a short one.
func (e *Engine) diagnose(ctx context.Context, db bun.IDB, ticketGroupID string, seats int) error {
	var group models.TicketGroup
	err := db.NewSelect().
		Model(&group).
		Column("id", "status", "available_seats").
		Where("id = ?", ticketGroupID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ticket group %s: %w", ticketGroupID, models.ErrNotFound)
	}
	if err != nil {
		return models.NewPersistenceError("read ticket group", err)
	}
	if group.Status != models.TicketGroupActive {
		return fmt.Errorf("ticket group %s: %w", ticketGroupID, models.ErrClosed)
	}
	return &models.InsufficientSeatsError{Available: group.AvailableSeats}
}

// Release returns seats to a lot, clamped at total_seats. Closed lots still
// take their seats back.
func (e *Engine) Release(ctx context.Context, ticketGroupID string, seats int) error {
	return e.ReleaseTx(ctx, e.DB, ticketGroupID, seats)
}

// ReleaseTx is Release on a caller supplied connection or transaction.
func (e *Engine) ReleaseTx(ctx context.Context, db bun.IDB, ticketGroupID string, seats int) error {
	if seats <= 0 {
		return models.InvalidInput("seats must be positive, got %d", seats)
	}

	res, err := db.NewUpdate().
		Model((*models.TicketGroup)(nil)).
		Set("available_seats = CASE WHEN available_seats + ? > total_seats THEN total_seats ELSE available_seats + ? END", seats, seats).
		Set("updated_at = ?", e.Now().UTC()).
		Where("id = ?", ticketGroupID).
		Exec(ctx)
	if err != nil {
		return models.NewPersistenceError("release seats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewPersistenceError("release seats", err)
	}
	if n == 0 {
		return fmt.Errorf("ticket group %s: %w", ticketGroupID, models.ErrNotFound)
	}

	metrics.SeatsReleased.Add(float64(seats))
	e.Logger.LogReservation("RELEASE", ticketGroupID, seats, "seats returned")
	return nil
}

func (e *Engine) validate(seats int) error {
	if seats <= 0 {
		return models.InvalidInput("seats must be positive, got %d", seats)
	}
	if e.MaxSeats > 0 && seats > e.MaxSeats {
		return models.InvalidInput("at most %d seats per booking, got %d", e.MaxSeats, seats)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrClosed):
		return "closed"
	case errors.Is(err, models.ErrInsufficientSeats):
		return "insufficient"
	default:
		return "error"
	}
}

// Correct sets a lot's available seats to target, clamped to [0, total],
// but only if the count is still what the caller observed. It reports
// whether the write happened.
func (e *Engine) Correct(ctx context.Context, ticketGroupID string, observed, target int) (bool, error) {
	res, err := e.DB.NewUpdate().
		Model((*models.TicketGroup)(nil)).
		Set("available_seats = CASE WHEN ? < 0 THEN 0 WHEN ? > total_seats THEN total_seats ELSE ? END", target, target, target).
		Set("updated_at = ?", e.Now().UTC()).
		Where("id = ?", ticketGroupID).
		Where("available_seats = ?", observed).
		Exec(ctx)
	if err != nil {
		return false, models.NewPersistenceError("correct seats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, models.NewPersistenceError("correct seats", err)
	}
	if n > 0 {
		e.Logger.LogReservation("CORRECT", ticketGroupID, target-observed, fmt.Sprintf("available %d -> %d", observed, target))
	}
	return n > 0, nil
}
