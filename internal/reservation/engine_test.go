package reservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

func setupTestDB(t *testing.T) *bun.DB {
	db, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedGroup(t *testing.T, db bun.IDB, total int, status string) *models.TicketGroup {
	now := time.Now().UTC()
	group := &models.TicketGroup{
		ID:             uuid.New().String(),
		AgencyID:       "seller-agency",
		Airline:        "Emirates",
		Sector:         "DXB-LHE",
		TravelType:     "one_way",
		FlightNo:       "EK622",
		Date:           now.Add(72 * time.Hour),
		PricePerSeat:   decimal.NewFromInt(450),
		TotalSeats:     total,
		AvailableSeats: total,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := db.NewInsert().Model(group).Exec(context.Background())
	require.NoError(t, err)
	return group
}

func availableSeats(t *testing.T, db bun.IDB, id string) int {
	var group models.TicketGroup
	err := db.NewSelect().Model(&group).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return group.AvailableSeats
}

func TestReserve_DecrementsAndReturnsSnapshot(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	snapshot, err := engine.Reserve(context.Background(), group.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, snapshot.AvailableSeats)
	assert.Equal(t, "seller-agency", snapshot.AgencyID)
	assert.True(t, snapshot.PricePerSeat.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, 7, availableSeats(t, db, group.ID))
}

func TestReserve_InsufficientSeatsReportsAvailable(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 5, models.TicketGroupActive)

	_, err := engine.Reserve(context.Background(), group.ID, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientSeats))

	var short *models.InsufficientSeatsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, 5, short.Available)
	assert.Equal(t, 5, availableSeats(t, db, group.ID))
}

func TestReserve_ClosedLot(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 5, models.TicketGroupClosed)

	_, err := engine.Reserve(context.Background(), group.ID, 1)
	assert.ErrorIs(t, err, models.ErrClosed)
	assert.Equal(t, 5, availableSeats(t, db, group.ID))
}

func TestReserve_ClosedBeatsInsufficient(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 2, models.TicketGroupClosed)

	_, err := engine.Reserve(context.Background(), group.ID, 50)
	assert.ErrorIs(t, err, models.ErrClosed)
}

func TestReserve_NotFound(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)

	_, err := engine.Reserve(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReserve_RejectsNonPositiveAndOversizedRequests(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 4)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	for _, n := range []int{0, -2, 5} {
		_, err := engine.Reserve(context.Background(), group.ID, n)
		assert.ErrorIs(t, err, models.ErrInvalidInput, "seats=%d", n)
	}
	assert.Equal(t, 10, availableSeats(t, db, group.ID))
}

func TestReserve_ExactRemainderThenEmpty(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 4, models.TicketGroupActive)

	snapshot, err := engine.Reserve(context.Background(), group.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.AvailableSeats)

	_, err = engine.Reserve(context.Background(), group.ID, 1)
	var short *models.InsufficientSeatsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, 0, short.Available)
}

func TestRelease_ClampsAtTotal(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	_, err := engine.Reserve(context.Background(), group.ID, 2)
	require.NoError(t, err)

	require.NoError(t, engine.Release(context.Background(), group.ID, 5))
	assert.Equal(t, 10, availableSeats(t, db, group.ID))
}

func TestRelease_ClosedLotStillTakesSeatsBack(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	_, err := engine.Reserve(context.Background(), group.ID, 3)
	require.NoError(t, err)
	_, err = db.NewUpdate().Model((*models.TicketGroup)(nil)).
		Set("status = ?", models.TicketGroupClosed).
		Where("id = ?", group.ID).
		Exec(context.Background())
	require.NoError(t, err)

	require.NoError(t, engine.Release(context.Background(), group.ID, 3))
	assert.Equal(t, 10, availableSeats(t, db, group.ID))
}

func TestRelease_Errors(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)

	assert.ErrorIs(t, engine.Release(context.Background(), "missing", 1), models.ErrNotFound)
	assert.ErrorIs(t, engine.Release(context.Background(), "missing", 0), models.ErrInvalidInput)
}

func TestReserveTx_RollbackRestoresSeats(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	boom := errors.New("insert failed")
	err := db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		snapshot, err := engine.ReserveTx(ctx, tx, group.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 7, snapshot.AvailableSeats)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 10, availableSeats(t, db, group.ID))
}

func TestReserve_ClosedDatabaseIsPersistenceFailure(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)
	require.NoError(t, db.Close())

	_, err := engine.Reserve(context.Background(), group.ID, 1)
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.True(t, models.IsRetryable(err))

	err = engine.Release(context.Background(), group.ID, 1)
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestReserve_ConcurrentRequestsNeverOversell(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	const requests = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved, rejected := 0, 0

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), group.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				reserved++
			} else if errors.Is(err, models.ErrInsufficientSeats) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, reserved)
	assert.Equal(t, requests-10, rejected)
	assert.Equal(t, 0, availableSeats(t, db, group.ID))
}

func TestReserveAndRelease_ConcurrentStaysInRange(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 6, models.TicketGroupActive)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = engine.Reserve(context.Background(), group.ID, 2)
				return
			}
			_ = engine.Release(context.Background(), group.ID, 1)
		}(i)
	}
	wg.Wait()

	seats := availableSeats(t, db, group.ID)
	assert.GreaterOrEqual(t, seats, 0)
	assert.LessOrEqual(t, seats, 6)
}

func TestCorrect_OnlyWhenUnchanged(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)
	ctx := context.Background()

	applied, err := engine.Correct(ctx, group.ID, 9, 4)
	require.NoError(t, err)
	assert.False(t, applied, "stale observation must not write")
	assert.Equal(t, 10, availableSeats(t, db, group.ID))

	applied, err = engine.Correct(ctx, group.ID, 10, 4)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 4, availableSeats(t, db, group.ID))

	applied, err = engine.Correct(ctx, group.ID, 4, 50)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 10, availableSeats(t, db, group.ID), "clamped to total")

	applied, err = engine.Correct(ctx, group.ID, 10, -3)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 0, availableSeats(t, db, group.ID))
}

func TestReserve_RacingRequestsOnlyOneFits(t *testing.T) {
	db := setupTestDB(t)
	engine := reservation.NewEngine(db, logger.Nop(), 0)
	group := seedGroup(t, db, 10, models.TicketGroupActive)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, n := range []int{7, 5} {
		wg.Add(1)
		go func(i, n int) {
			defer wg.Done()
			_, errs[i] = engine.Reserve(context.Background(), group.ID, n)
		}(i, n)
	}
	wg.Wait()

	var failed error
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			failed = err
		}
	}
	require.Equal(t, 1, succeeded)

	var insufficient *models.InsufficientSeatsError
	require.True(t, errors.As(failed, &insufficient))
	assert.Contains(t, []int{3, 5, 10}, insufficient.Available)

	left := availableSeats(t, db, group.ID)
	assert.True(t, left == 3 || left == 5, "available seats %d", left)
}
