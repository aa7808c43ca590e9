package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"

	"github.com/google/uuid"
)

type InventoryDBLayer interface {
	CreateTicketGroup(ctx context.Context, group *models.TicketGroup) error
	GetTicketGroupByID(ctx context.Context, id string) (*models.TicketGroup, error)
	ListTicketGroups(ctx context.Context, f models.TicketGroupFilter) (*models.TicketGroupPage, error)
	UpdateTicketGroup(ctx context.Context, id string, upd models.TicketGroupUpdate, now time.Time) (*models.TicketGroup, error)
	SetTicketGroupStatus(ctx context.Context, id, status string, now time.Time) (*models.TicketGroup, error)
	MarketplaceStats(ctx context.Context) (*models.MarketplaceStats, error)
}

type InventoryService struct {
	DB     InventoryDBLayer
	Logger *logger.Logger
	Now    func() time.Time
}

func NewInventoryService(db InventoryDBLayer, log *logger.Logger) *InventoryService {
	return &InventoryService{DB: db, Logger: log, Now: time.Now}
}

// CreateTicketGroup lists a new lot for the actor's agency. Available seats
// start at the total and the lot opens as active.
func (s *InventoryService) CreateTicketGroup(ctx context.Context, actor models.Actor, req models.TicketGroup) (*models.TicketGroup, error) {
	if err := validateNew(req); err != nil {
		return nil, err
	}
	if actor.AgencyID == "" {
		return nil, fmt.Errorf("actor has no agency: %w", models.ErrForbidden)
	}

	now := s.Now().UTC()
	group := req
	group.ID = uuid.New().String()
	group.AgencyID = actor.AgencyID
	group.AvailableSeats = group.TotalSeats
	group.Status = models.TicketGroupActive
	group.Date = group.Date.UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	if err := s.DB.CreateTicketGroup(ctx, &group); err != nil {
		return nil, err
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Ticket group %s created by agency %s with %d seats", group.ID, group.AgencyID, group.TotalSeats))
	return &group, nil
}

func (s *InventoryService) GetTicketGroup(ctx context.Context, id string) (*models.TicketGroup, error) {
	return s.DB.GetTicketGroupByID(ctx, id)
}

// ListTicketGroups scopes the listing to what the actor may see.
func (s *InventoryService) ListTicketGroups(ctx context.Context, actor models.Actor, f models.TicketGroupFilter) (*models.TicketGroupPage, error) {
	f.ViewerAgencyID = actor.AgencyID
	f.ViewerIsAdmin = actor.IsSuperAdmin()
	if f.Today.IsZero() {
		f.Today = s.Now().UTC()
	}
	if f.Status != "" && f.Status != models.TicketGroupActive && f.Status != models.TicketGroupClosed {
		return nil, models.InvalidInput("unknown status %q", f.Status)
	}
	return s.DB.ListTicketGroups(ctx, f)
}

// UpdateTicketGroup edits descriptive fields and capacity. Only the owning
// agency or a SuperAdmin may edit.
func (s *InventoryService) UpdateTicketGroup(ctx context.Context, actor models.Actor, id string, upd models.TicketGroupUpdate) (*models.TicketGroup, error) {
	if err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	if upd.TotalSeats != nil && *upd.TotalSeats < 1 {
		return nil, models.InvalidInput("total_seats must be at least 1")
	}
	if upd.PricePerSeat != nil && upd.PricePerSeat.IsNegative() {
		return nil, models.InvalidInput("price_per_seat must not be negative")
	}
	if upd.Date != nil {
		d := upd.Date.UTC()
		upd.Date = &d
	}

	group, err := s.DB.UpdateTicketGroup(ctx, id, upd, s.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Ticket group %s updated by %s", id, actor.UserID))
	return group, nil
}

// CloseTicketGroup stops new reservations. Closing twice is a no-op.
func (s *InventoryService) CloseTicketGroup(ctx context.Context, actor models.Actor, id string) (*models.TicketGroup, error) {
	return s.SetStatus(ctx, actor, id, models.TicketGroupClosed)
}

// SetStatus opens or closes a lot.
func (s *InventoryService) SetStatus(ctx context.Context, actor models.Actor, id, status string) (*models.TicketGroup, error) {
	if status != models.TicketGroupActive && status != models.TicketGroupClosed {
		return nil, models.InvalidInput("invalid status %q", status)
	}
	if err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	group, err := s.DB.SetTicketGroupStatus(ctx, id, status, s.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Ticket group %s set to %s by %s", id, status, actor.UserID))
	return group, nil
}

func (s *InventoryService) MarketplaceStats(ctx context.Context) (*models.MarketplaceStats, error) {
	return s.DB.MarketplaceStats(ctx)
}

func (s *InventoryService) authorize(ctx context.Context, actor models.Actor, id string) error {
	group, err := s.DB.GetTicketGroupByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(group.AgencyID) {
		s.Logger.LogSecurity("INVENTORY_FORBIDDEN", fmt.Sprintf("agency %s tried to modify ticket group %s", actor.AgencyID, id))
		return fmt.Errorf("ticket group %s: %w", id, models.ErrForbidden)
	}
	return nil
}

func validateNew(g models.TicketGroup) error {
	var missing []string
	for name, v := range map[string]string{
		"airline":     g.Airline,
		"sector":      g.Sector,
		"travel_type": g.TravelType,
		"flight_no":   g.FlightNo,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return models.InvalidInput("missing fields: %s", strings.Join(missing, ", "))
	}
	if g.Date.IsZero() {
		return models.InvalidInput("date is required")
	}
	if g.TotalSeats < 1 {
		return models.InvalidInput("total_seats must be at least 1")
	}
	if g.PricePerSeat.IsNegative() {
		return models.InvalidInput("price_per_seat must not be negative")
	}
	return nil
}
