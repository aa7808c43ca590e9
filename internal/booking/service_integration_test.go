package booking_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-marketplace/internal/booking"
	booking_db "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/reservation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// brokenInsert lets the seat reservation succeed and then fails the write.
type brokenInsert struct {
	*booking_db.DB
}

func (b brokenInsert) CreateBooking(context.Context, *models.TicketBooking) error {
	return errors.New("disk full")
}

type integration struct {
	db  *bun.DB
	svc *booking.BookingService
}

func setupIntegration(t *testing.T, layer func(*bun.DB) booking.BookingDBLayer) *integration {
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.Nop()
	engine := reservation.NewEngine(db, log, 0)
	svc := booking.NewBookingService(layer(db), engine, db, nil, nil, log)
	return &integration{db: db, svc: svc}
}

func realLayer(db *bun.DB) booking.BookingDBLayer {
	return &booking_db.DB{Bun: db}
}

func (in *integration) seedLot(t *testing.T, total int) string {
	now := time.Now().UTC()
	group := &models.TicketGroup{
		ID:             uuid.New().String(),
		AgencyID:       seller.AgencyID,
		Airline:        "Qatar Airways",
		Sector:         "DOH-KHI",
		TravelType:     "one_way",
		Date:           now.Add(48 * time.Hour),
		PricePerSeat:   decimal.NewFromInt(300),
		TotalSeats:     total,
		AvailableSeats: total,
		Status:         models.TicketGroupActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := in.db.NewInsert().Model(group).Exec(context.Background())
	require.NoError(t, err)
	return group.ID
}

func (in *integration) available(t *testing.T, id string) int {
	var group models.TicketGroup
	require.NoError(t, in.db.NewSelect().Model(&group).Where("id = ?", id).Scan(context.Background()))
	return group.AvailableSeats
}

func TestIntegration_FailedInsertRestoresSeats(t *testing.T) {
	in := setupIntegration(t, func(db *bun.DB) booking.BookingDBLayer {
		return brokenInsert{DB: &booking_db.DB{Bun: db}}
	})
	lotID := in.seedLot(t, 10)

	_, err := in.svc.CreateBooking(context.Background(), buyer, models.BookingRequest{TicketGroupID: lotID, SeatsBooked: 3})
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.Equal(t, 10, in.available(t, lotID))
}

func TestIntegration_RejectTwice(t *testing.T) {
	in := setupIntegration(t, realLayer)
	lotID := in.seedLot(t, 10)
	ctx := context.Background()

	b, err := in.svc.CreateBooking(ctx, buyer, models.BookingRequest{TicketGroupID: lotID, SeatsBooked: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, in.available(t, lotID))

	_, err = in.svc.Reject(ctx, seller, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, in.available(t, lotID))

	_, err = in.svc.Reject(ctx, seller, b.ID)
	var invalid *models.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.BookingRejected, invalid.Status)
	assert.Equal(t, 10, in.available(t, lotID))
}

func TestIntegration_BuyerConfirmIsForbiddenEvenWhenTerminal(t *testing.T) {
	in := setupIntegration(t, realLayer)
	lotID := in.seedLot(t, 5)
	ctx := context.Background()

	b, err := in.svc.CreateBooking(ctx, buyer, models.BookingRequest{TicketGroupID: lotID, SeatsBooked: 1})
	require.NoError(t, err)
	_, err = in.svc.Cancel(ctx, buyer, b.ID)
	require.NoError(t, err)

	_, err = in.svc.Confirm(ctx, buyer, b.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestIntegration_ConfirmThenCancelReleases(t *testing.T) {
	in := setupIntegration(t, realLayer)
	lotID := in.seedLot(t, 10)
	ctx := context.Background()

	b, err := in.svc.CreateBooking(ctx, buyer, models.BookingRequest{TicketGroupID: lotID, SeatsBooked: 2})
	require.NoError(t, err)

	confirmed, err := in.svc.Confirm(ctx, seller, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.False(t, confirmed.IsReadByBuyer)
	assert.Equal(t, 8, in.available(t, lotID))

	cancelled, err := in.svc.Cancel(ctx, buyer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.False(t, cancelled.IsReadBySeller)
	assert.Equal(t, 10, in.available(t, lotID))
}

func TestIntegration_ConcurrentCancelReleasesOnce(t *testing.T) {
	in := setupIntegration(t, realLayer)
	lotID := in.seedLot(t, 10)
	ctx := context.Background()

	b, err := in.svc.CreateBooking(ctx, buyer, models.BookingRequest{TicketGroupID: lotID, SeatsBooked: 3})
	require.NoError(t, err)

	var ok, invalid int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		actor := buyer
		if i%2 == 1 {
			actor = seller
		}
		go func(actor models.Actor) {
			defer wg.Done()
			_, err := in.svc.Cancel(ctx, actor, b.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, models.ErrInvalidTransition):
				atomic.AddInt32(&invalid, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(actor)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(7), invalid)
	assert.Equal(t, 10, in.available(t, lotID))
}

func TestIntegration_ListAndUnread(t *testing.T) {
	in := setupIntegration(t, realLayer)
	lotID := in.seedLot(t, 10)
	ctx := context.Background()

	_, err := in.svc.CreateBooking(ctx, buyer, models.BookingRequest{TicketGroupID: lotID, SeatsBooked: 1})
	require.NoError(t, err)

	counts, err := in.svc.UnreadCounts(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Sales)

	sales, err := in.svc.ListBookings(ctx, seller, models.ListSales)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "Unknown", sales[0].Counterparty)
	require.NotNil(t, sales[0].TicketGroup)
	assert.Equal(t, "DOH-KHI", sales[0].TicketGroup.Sector)

	n, err := in.svc.MarkRead(ctx, seller, models.ListSales)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
