package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-marketplace/internal/database"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/metrics"
	"ms-marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const referenceAttempts = 3

type BookingDBLayer interface {
	CreateBooking(ctx context.Context, booking *models.TicketBooking) error
	GetBookingByID(ctx context.Context, id string) (*models.TicketBooking, error)
	GetBookingByReference(ctx context.Context, ref string) (*models.TicketBooking, error)
	ListBookings(ctx context.Context, agencyID, kind string) ([]models.TicketBooking, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id, from, to string, notifyBuyer bool, now time.Time) (*models.TicketBooking, error)
	UnreadCounts(ctx context.Context, agencyID string) (*models.UnreadCounts, error)
	MarkRead(ctx context.Context, agencyID, kind string) (int64, error)
}

type SeatReserver interface {
	Reserve(ctx context.Context, ticketGroupID string, seats int) (*models.TicketGroup, error)
	Release(ctx context.Context, ticketGroupID string, seats int) error
	ReleaseTx(ctx context.Context, db bun.IDB, ticketGroupID string, seats int) error
}

// TxRunner is satisfied by *bun.DB.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, topic string, evt models.BookingEvent) error
	PublishReconciliation(ctx context.Context, evt models.ReconciliationEvent) error
}

type AgencyDirectory interface {
	AgencyName(ctx context.Context, agencyID string) string
}

type BookingService struct {
	DB        BookingDBLayer
	Seats     SeatReserver
	Tx        TxRunner
	Events    EventPublisher
	Directory AgencyDirectory
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewBookingService(db BookingDBLayer, seats SeatReserver, tx TxRunner, events EventPublisher, directory AgencyDirectory, log *logger.Logger) *BookingService {
	return &BookingService{
		DB:        db,
		Seats:     seats,
		Tx:        tx,
		Events:    events,
		Directory: directory,
		Logger:    log,
		Now:       time.Now,
	}
}

// ---------------- CREATE ----------------

// CreateBooking reserves seats and records a pending booking. If the record
// cannot be written the seats are released again before the error is
// returned; a failed release is escalated as a reconciliation incident.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req models.BookingRequest) (*models.TicketBooking, error) {
	if actor.AgencyID == "" {
		return nil, fmt.Errorf("actor has no agency: %w", models.ErrForbidden)
	}
	if strings.TrimSpace(req.TicketGroupID) == "" {
		return nil, models.InvalidInput("ticket_group_id is required")
	}
	if req.SeatsBooked <= 0 {
		return nil, models.InvalidInput("seats_booked must be positive, got %d", req.SeatsBooked)
	}
	if err := validatePassengers(req.Passengers, req.SeatsBooked); err != nil {
		return nil, err
	}

	group, err := s.Seats.Reserve(ctx, req.TicketGroupID, req.SeatsBooked)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	booking := &models.TicketBooking{
		ID:             uuid.New().String(),
		BuyerAgencyID:  actor.AgencyID,
		SellerAgencyID: group.AgencyID,
		TicketGroupID:  group.ID,
		SeatsBooked:    req.SeatsBooked,
		TotalPrice:     group.PricePerSeat.Mul(decimalFromInt(req.SeatsBooked)),
		Passengers:     req.Passengers,
		Status:         models.BookingPending,
		IsReadByBuyer:  true,
		IsReadBySeller: false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 1; ; attempt++ {
		booking.BookingReference = NewReference(now)
		err = s.DB.CreateBooking(ctx, booking)
		if err == nil || !database.IsUniqueViolation(err) || attempt == referenceAttempts {
			break
		}
		s.Logger.Warn("BOOKING", fmt.Sprintf("Reference %s collided, regenerating", booking.BookingReference))
	}
	if err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to persist booking for ticket group %s: %v. Releasing %d seats.", group.ID, err, req.SeatsBooked))
		s.compensate(ctx, group.ID, req.SeatsBooked, err)
		return nil, models.NewPersistenceError("create booking", err)
	}

	s.Logger.LogBooking("CREATE", booking.ID, fmt.Sprintf("%s reserved %d seats on %s", booking.BookingReference, booking.SeatsBooked, group.ID))
	s.publish(ctx, models.TopicBookingCreated, booking, actor)
	return booking, nil
}

// compensate undoes a reservation whose booking was never written. The
// release uses a fresh context so a cancelled request still returns seats.
func (s *BookingService) compensate(ctx context.Context, ticketGroupID string, seats int, cause error) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := s.Seats.Release(releaseCtx, ticketGroupID, seats)
	if err == nil {
		return
	}

	metrics.CompensationFailures.Inc()
	s.Logger.LogReconciliation(ticketGroupID, seats, err)
	evt := models.ReconciliationEvent{
		TicketGroupID: ticketGroupID,
		Seats:         seats,
		Reason:        fmt.Sprintf("booking insert failed: %v", cause),
		Error:         err.Error(),
		Timestamp:     s.Now().UTC(),
	}
	if s.Events == nil {
		return
	}
	if perr := s.Events.PublishReconciliation(releaseCtx, evt); perr != nil {
		s.Logger.Error("RECONCILIATION", fmt.Sprintf("Failed to publish reconciliation event for %s: %v", ticketGroupID, perr))
	}
}

// ---------------- TRANSITIONS ----------------

func (s *BookingService) Confirm(ctx context.Context, actor models.Actor, bookingID string) (*models.TicketBooking, error) {
	return s.transition(ctx, actor, bookingID, EventConfirm)
}

func (s *BookingService) Reject(ctx context.Context, actor models.Actor, bookingID string) (*models.TicketBooking, error) {
	return s.transition(ctx, actor, bookingID, EventReject)
}

func (s *BookingService) Cancel(ctx context.Context, actor models.Actor, bookingID string) (*models.TicketBooking, error) {
	return s.transition(ctx, actor, bookingID, EventCancel)
}

// Transition fires an event by name.
func (s *BookingService) Transition(ctx context.Context, actor models.Actor, bookingID string, ev Event) (*models.TicketBooking, error) {
	switch ev {
	case EventConfirm, EventReject, EventCancel:
		return s.transition(ctx, actor, bookingID, ev)
	default:
		return nil, models.InvalidInput("unknown event %q", ev)
	}
}

// transition checks the actor first, then the state machine. The status
// write is a compare-and-set inside the same transaction as the seat
// release, so seats come back at most once per booking.
func (s *BookingService) transition(ctx context.Context, actor models.Actor, bookingID string, ev Event) (*models.TicketBooking, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !Allowed(actor, booking, ev) {
		metrics.BookingTransitions.WithLabelValues(string(ev), "forbidden").Inc()
		s.Logger.LogSecurity("BOOKING_FORBIDDEN", fmt.Sprintf("agency %s cannot %s booking %s", actor.AgencyID, ev, bookingID))
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrForbidden)
	}

	to, release, err := Next(booking.Status, ev)
	if err != nil {
		metrics.BookingTransitions.WithLabelValues(string(ev), "invalid").Inc()
		return nil, err
	}

	// The buyer hears about seller actions and the seller hears about
	// buyer cancellations.
	notifyBuyer := actor.AgencyID == booking.SellerAgencyID

	var updated *models.TicketBooking
	err = s.Tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := s.DB.UpdateStatusTx(ctx, tx, booking.ID, booking.Status, to, notifyBuyer, s.Now().UTC())
		if err != nil {
			return err
		}
		if release {
			if err := s.Seats.ReleaseTx(ctx, tx, booking.TicketGroupID, booking.SeatsBooked); err != nil {
				return err
			}
		}
		updated = u
		return nil
	})
	if err != nil {
		metrics.BookingTransitions.WithLabelValues(string(ev), "error").Inc()
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			invalid.Event = string(ev)
			return nil, invalid
		}
		if errors.Is(err, models.ErrPersistence) || errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, models.NewPersistenceError("booking transition", err)
	}

	metrics.BookingTransitions.WithLabelValues(string(ev), "ok").Inc()
	s.Logger.LogBooking(strings.ToUpper(string(ev)), updated.ID, fmt.Sprintf("%s -> %s by %s", booking.Status, to, actor.AgencyID))
	s.publish(ctx, topicFor(ev), updated, actor)
	return updated, nil
}

// ---------------- QUERIES ----------------

// GetBooking returns a booking visible to either party.
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.TicketBooking, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, booking) {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrForbidden)
	}
	return booking, nil
}

func (s *BookingService) GetBookingByReference(ctx context.Context, actor models.Actor, ref string) (*models.TicketBooking, error) {
	booking, err := s.DB.GetBookingByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, booking) {
		return nil, fmt.Errorf("booking %s: %w", ref, models.ErrForbidden)
	}
	return booking, nil
}

// ListBookings returns the actor's sales or purchases, newest first, each
// labelled with the other party's name.
func (s *BookingService) ListBookings(ctx context.Context, actor models.Actor, kind string) ([]models.BookingView, error) {
	if kind == "" {
		kind = models.ListPurchases
	}
	if kind != models.ListSales && kind != models.ListPurchases {
		return nil, models.InvalidInput("unknown list type %q", kind)
	}

	bookings, err := s.DB.ListBookings(ctx, actor.AgencyID, kind)
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	views := make([]models.BookingView, 0, len(bookings))
	for _, b := range bookings {
		other := b.SellerAgencyID
		if kind == models.ListSales {
			other = b.BuyerAgencyID
		}
		name, ok := names[other]
		if !ok {
			name = s.agencyName(ctx, other)
			names[other] = name
		}
		views = append(views, models.BookingView{TicketBooking: b, Counterparty: name})
	}
	return views, nil
}

func (s *BookingService) UnreadCounts(ctx context.Context, actor models.Actor) (*models.UnreadCounts, error) {
	return s.DB.UnreadCounts(ctx, actor.AgencyID)
}

func (s *BookingService) MarkRead(ctx context.Context, actor models.Actor, kind string) (int64, error) {
	return s.DB.MarkRead(ctx, actor.AgencyID, kind)
}

func (s *BookingService) canView(actor models.Actor, b *models.TicketBooking) bool {
	return actor.IsSuperAdmin() || actor.AgencyID == b.BuyerAgencyID || actor.AgencyID == b.SellerAgencyID
}

func (s *BookingService) agencyName(ctx context.Context, agencyID string) string {
	if s.Directory == nil {
		return "Unknown"
	}
	return s.Directory.AgencyName(ctx, agencyID)
}

// publish is fire-and-forget; the booking is already committed.
func (s *BookingService) publish(ctx context.Context, topic string, b *models.TicketBooking, actor models.Actor) {
	if s.Events == nil {
		return
	}
	evt := models.BookingEvent{
		Type:             topic,
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		TicketGroupID:    b.TicketGroupID,
		BuyerAgencyID:    b.BuyerAgencyID,
		SellerAgencyID:   b.SellerAgencyID,
		SeatsBooked:      b.SeatsBooked,
		Status:           b.Status,
		ActorUserID:      actor.UserID,
		Timestamp:        s.Now().UTC(),
	}
	if err := s.Events.PublishBookingEvent(ctx, topic, evt); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for booking %s: %v", topic, b.ID, err))
	}
}
