package db_test

import (
	"context"
	"testing"
	"time"

	"ms-marketplace/internal/database"
	inventory_db "ms-marketplace/internal/inventory/db"
	"ms-marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var today = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*inventory_db.DB, *bun.DB) {
	bunDB, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })
	return &inventory_db.DB{Bun: bunDB}, bunDB
}

type groupOpt func(*models.TicketGroup)

func newGroup(agency string, opts ...groupOpt) *models.TicketGroup {
	g := &models.TicketGroup{
		ID:             uuid.New().String(),
		AgencyID:       agency,
		Airline:        "Qatar Airways",
		Sector:         "DOH-KHI",
		TravelType:     "one_way",
		FlightNo:       "QR604",
		Date:           today.AddDate(0, 0, 5),
		PricePerSeat:   decimal.NewFromInt(300),
		TotalSeats:     10,
		AvailableSeats: 10,
		Status:         models.TicketGroupActive,
		CreatedAt:      today,
		UpdatedAt:      today,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func insert(t *testing.T, d *inventory_db.DB, groups ...*models.TicketGroup) {
	for _, g := range groups {
		require.NoError(t, d.CreateTicketGroup(context.Background(), g))
	}
}

func ids(page *models.TicketGroupPage) []string {
	out := make([]string, 0, len(page.TicketGroups))
	for _, g := range page.TicketGroups {
		out = append(out, g.ID)
	}
	return out
}

func TestCreateAndGetTicketGroup(t *testing.T) {
	d, _ := setupTestDB(t)
	g := newGroup("agency-a")
	insert(t, d, g)

	got, err := d.GetTicketGroupByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, "QR604", got.FlightNo)
	assert.Equal(t, 10, got.AvailableSeats)
	assert.True(t, got.PricePerSeat.Equal(decimal.NewFromInt(300)))

	_, err = d.GetTicketGroupByID(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListTicketGroups_NonAdminScoping(t *testing.T) {
	d, _ := setupTestDB(t)
	open := newGroup("agency-b")
	otherClosed := newGroup("agency-b", func(g *models.TicketGroup) { g.Status = models.TicketGroupClosed })
	otherPast := newGroup("agency-b", func(g *models.TicketGroup) { g.Date = today.AddDate(0, 0, -1) })
	otherSoldOut := newGroup("agency-b", func(g *models.TicketGroup) { g.AvailableSeats = 0 })
	ownClosed := newGroup("agency-a", func(g *models.TicketGroup) { g.Status = models.TicketGroupClosed })
	insert(t, d, open, otherClosed, otherPast, otherSoldOut, ownClosed)

	page, err := d.ListTicketGroups(context.Background(), models.TicketGroupFilter{
		ViewerAgencyID: "agency-a",
		Today:          today,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{open.ID, ownClosed.ID}, ids(page))
	assert.Equal(t, 2, page.Total)

	page, err = d.ListTicketGroups(context.Background(), models.TicketGroupFilter{
		ViewerAgencyID: "agency-z",
		ViewerIsAdmin:  true,
		Today:          today,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)

	page, err = d.ListTicketGroups(context.Background(), models.TicketGroupFilter{
		ViewerAgencyID: "agency-a",
		OwnedOnly:      true,
		Today:          today,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ownClosed.ID}, ids(page))
}

func TestListTicketGroups_Filters(t *testing.T) {
	d, _ := setupTestDB(t)
	a := newGroup("agency-b", func(g *models.TicketGroup) { g.Sector = "LHE-DXB"; g.Airline = "Emirates" })
	b := newGroup("agency-b", func(g *models.TicketGroup) {
		g.Sector = "KHI-JED"
		g.TravelType = "return"
		g.Date = today.AddDate(0, 0, 9).Add(14 * time.Hour)
	})
	insert(t, d, a, b)

	base := models.TicketGroupFilter{ViewerIsAdmin: true, Today: today}

	f := base
	f.Sector = "dxb"
	page, err := d.ListTicketGroups(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(page))

	f = base
	f.Airline = "EMIR"
	page, err = d.ListTicketGroups(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(page))

	f = base
	f.TravelType = "return"
	page, err = d.ListTicketGroups(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(page))

	day := today.AddDate(0, 0, 9)
	f = base
	f.Date = &day
	page, err = d.ListTicketGroups(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(page))
}

func TestListTicketGroups_SortingAndPaging(t *testing.T) {
	d, _ := setupTestDB(t)
	var groups []*models.TicketGroup
	for i := 0; i < 5; i++ {
		i := i
		groups = append(groups, newGroup("agency-b", func(g *models.TicketGroup) {
			g.PricePerSeat = decimal.NewFromInt(int64(500 - i*50))
			g.CreatedAt = today.Add(time.Duration(i) * time.Minute)
		}))
	}
	insert(t, d, groups...)

	page, err := d.ListTicketGroups(context.Background(), models.TicketGroupFilter{
		ViewerIsAdmin: true, Today: today, SortBy: "price_per_seat", SortOrder: "asc", Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{groups[4].ID, groups[3].ID}, ids(page))
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Page)

	page, err = d.ListTicketGroups(context.Background(), models.TicketGroupFilter{
		ViewerIsAdmin: true, Today: today, SortBy: "bogus", Page: 3, Limit: 2,
	})
	require.NoError(t, err)
	// Unknown sort falls back to newest first.
	assert.Equal(t, []string{groups[0].ID}, ids(page))

	page, err = d.ListTicketGroups(context.Background(), models.TicketGroupFilter{ViewerIsAdmin: true, Today: today})
	require.NoError(t, err)
	assert.Equal(t, inventory_db.DefaultLimit, page.Limit)
	assert.Equal(t, groups[4].ID, page.TicketGroups[0].ID)
}

func TestUpdateTicketGroup_TotalShiftsAvailableAndClamps(t *testing.T) {
	d, bunDB := setupTestDB(t)
	g := newGroup("agency-a")
	insert(t, d, g)

	// Three seats are held by bookings.
	_, err := bunDB.NewUpdate().Model((*models.TicketGroup)(nil)).
		Set("available_seats = 7").Where("id = ?", g.ID).Exec(context.Background())
	require.NoError(t, err)

	total := 8
	airline := "PIA"
	got, err := d.UpdateTicketGroup(context.Background(), g.ID, models.TicketGroupUpdate{TotalSeats: &total, Airline: &airline}, today)
	require.NoError(t, err)
	assert.Equal(t, 8, got.TotalSeats)
	assert.Equal(t, 5, got.AvailableSeats)
	assert.Equal(t, "PIA", got.Airline)

	total = 2
	got, err = d.UpdateTicketGroup(context.Background(), g.ID, models.TicketGroupUpdate{TotalSeats: &total}, today)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSeats)

	total = 12
	got, err = d.UpdateTicketGroup(context.Background(), g.ID, models.TicketGroupUpdate{TotalSeats: &total}, today)
	require.NoError(t, err)
	assert.Equal(t, 10, got.AvailableSeats)
	assert.LessOrEqual(t, got.AvailableSeats, got.TotalSeats)

	_, err = d.UpdateTicketGroup(context.Background(), "nope", models.TicketGroupUpdate{Airline: &airline}, today)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateTicketGroup_ClearReturnDate(t *testing.T) {
	d, _ := setupTestDB(t)
	ret := today.AddDate(0, 0, 20)
	g := newGroup("agency-a", func(g *models.TicketGroup) { g.ReturnDate = &ret })
	insert(t, d, g)

	got, err := d.UpdateTicketGroup(context.Background(), g.ID, models.TicketGroupUpdate{ClearReturnDate: true}, today)
	require.NoError(t, err)
	assert.Nil(t, got.ReturnDate)
}

func TestSetTicketGroupStatus_Idempotent(t *testing.T) {
	d, _ := setupTestDB(t)
	g := newGroup("agency-a")
	insert(t, d, g)

	for i := 0; i < 2; i++ {
		got, err := d.SetTicketGroupStatus(context.Background(), g.ID, models.TicketGroupClosed, today)
		require.NoError(t, err)
		assert.Equal(t, models.TicketGroupClosed, got.Status)
	}

	_, err := d.SetTicketGroupStatus(context.Background(), "nope", models.TicketGroupClosed, today)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMarketplaceStats(t *testing.T) {
	d, bunDB := setupTestDB(t)
	insert(t, d,
		newGroup("agency-a", func(g *models.TicketGroup) { g.AvailableSeats = 4 }),
		newGroup("agency-b", func(g *models.TicketGroup) { g.AvailableSeats = 6 }),
		newGroup("agency-b", func(g *models.TicketGroup) { g.Status = models.TicketGroupClosed }),
	)
	for _, b := range []struct {
		seats  int
		status string
	}{{2, models.BookingConfirmed}, {3, models.BookingConfirmed}, {5, models.BookingPending}} {
		_, err := bunDB.NewInsert().Model(&models.TicketBooking{
			ID:               uuid.New().String(),
			BookingReference: uuid.New().String(),
			BuyerAgencyID:    "agency-b",
			SellerAgencyID:   "agency-a",
			TicketGroupID:    "tg",
			SeatsBooked:      b.seats,
			TotalPrice:       decimal.Zero,
			Status:           b.status,
			CreatedAt:        today,
			UpdatedAt:        today,
		}).Exec(context.Background())
		require.NoError(t, err)
	}

	stats, err := d.MarketplaceStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.ActiveTickets)
	assert.Equal(t, 5, stats.SoldTickets)
}
