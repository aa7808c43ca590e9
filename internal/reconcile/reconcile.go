// Package reconcile finds lots whose available seats disagree with the
// seats held by live bookings, which happens when a compensating release
// failed, and optionally puts them right.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

type GroupSource interface {
	SeatCounts(ctx context.Context) ([]models.TicketGroup, error)
}

type HeldSource interface {
	HeldSeats(ctx context.Context) (map[string]int, error)
}

type SeatCorrector interface {
	Correct(ctx context.Context, ticketGroupID string, observed, target int) (bool, error)
}

// Drift is one lot whose counts do not add up.
type Drift struct {
	TicketGroupID  string `json:"ticket_group_id"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	HeldSeats      int    `json:"held_seats"`
	Expected       int    `json:"expected"`
	Fixed          bool   `json:"fixed"`
}

// Missing is how many seats the lot should get back; negative means it
// shows too many.
func (d Drift) Missing() int {
	return d.Expected - d.AvailableSeats
}

type Reconciler struct {
	Groups  GroupSource
	Held    HeldSource
	Seats   SeatCorrector
	Logger  *logger.Logger
	Settle  time.Duration
	Sleeper func(ctx context.Context, d time.Duration) error
}

func NewReconciler(groups GroupSource, held HeldSource, seats SeatCorrector, log *logger.Logger, settle time.Duration) *Reconciler {
	return &Reconciler{
		Groups:  groups,
		Held:    held,
		Seats:   seats,
		Logger:  log,
		Settle:  settle,
		Sleeper: sleep,
	}
}

// Scan reports every drifting lot, sorted by id.
func (r *Reconciler) Scan(ctx context.Context) ([]Drift, error) {
	groups, err := r.Groups.SeatCounts(ctx)
	if err != nil {
		return nil, err
	}
	held, err := r.Held.HeldSeats(ctx)
	if err != nil {
		return nil, err
	}

	drifts := []Drift{}
	for _, g := range groups {
		h := held[g.ID]
		want := models.TicketGroup{TotalSeats: g.TotalSeats, AvailableSeats: g.TotalSeats - h}
		want.ClampSeats()
		expected := want.AvailableSeats
		if expected == g.AvailableSeats {
			continue
		}
		drifts = append(drifts, Drift{
			TicketGroupID:  g.ID,
			TotalSeats:     g.TotalSeats,
			AvailableSeats: g.AvailableSeats,
			HeldSeats:      h,
			Expected:       expected,
		})
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].TicketGroupID < drifts[j].TicketGroupID })
	return drifts, nil
}

// Fix corrects drifting lots. A reservation whose booking is still being
// written looks exactly like a leak, so a lot is only corrected when two
// scans Settle apart show the same drift, and the write is skipped if the
// count moved in between. An empty only means every lot.
func (r *Reconciler) Fix(ctx context.Context, only ...string) ([]Drift, error) {
	first, err := r.scanFiltered(ctx, only)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return first, nil
	}

	if err := r.Sleeper(ctx, r.Settle); err != nil {
		return nil, err
	}
	second, err := r.scanFiltered(ctx, only)
	if err != nil {
		return nil, err
	}

	before := make(map[string]Drift, len(first))
	for _, d := range first {
		before[d.TicketGroupID] = d
	}

	for i, d := range second {
		prev, ok := before[d.TicketGroupID]
		if !ok || prev.AvailableSeats != d.AvailableSeats || prev.Expected != d.Expected {
			r.Logger.Info("RECONCILIATION", fmt.Sprintf("Ticket group %s still moving, left for the next run", d.TicketGroupID))
			continue
		}
		fixed, err := r.Seats.Correct(ctx, d.TicketGroupID, d.AvailableSeats, d.Expected)
		if err != nil {
			return nil, err
		}
		second[i].Fixed = fixed
		if fixed {
			r.Logger.Warn("RECONCILIATION", fmt.Sprintf("Ticket group %s corrected from %d to %d available seats", d.TicketGroupID, d.AvailableSeats, d.Expected))
		}
	}
	return second, nil
}

// HandleEvent repairs the lot named by a reconciliation incident.
func (r *Reconciler) HandleEvent(ctx context.Context, evt models.ReconciliationEvent) error {
	r.Logger.Info("RECONCILIATION", fmt.Sprintf("Incident for ticket group %s (%d seats): %s", evt.TicketGroupID, evt.Seats, evt.Reason))
	_, err := r.Fix(ctx, evt.TicketGroupID)
	return err
}

func (r *Reconciler) scanFiltered(ctx context.Context, only []string) ([]Drift, error) {
	drifts, err := r.Scan(ctx)
	if err != nil || len(only) == 0 {
		return drifts, err
	}
	keep := map[string]bool{}
	for _, id := range only {
		keep[id] = true
	}
	filtered := drifts[:0]
	for _, d := range drifts {
		if keep[d.TicketGroupID] {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
