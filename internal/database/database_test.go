package database

import (
	"context"
	"testing"

	"ms-marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func TestDriverFor(t *testing.T) {
	driver, dsn := driverFor("postgres://u:p@localhost/db")
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://u:p@localhost/db", dsn)

	driver, dsn = driverFor("sqlite://file:dev.db?cache=shared")
	assert.Equal(t, sqliteshim.ShimName, driver)
	assert.Equal(t, "file:dev.db?cache=shared", dsn)
}

func TestOpenMemory_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	assert.False(t, IsPostgres(db))

	// Tables exist and are empty.
	for _, m := range []interface{}{
		(*models.TicketGroup)(nil),
		(*models.TicketBooking)(nil),
		(*models.SalesBooking)(nil),
		(*models.LedgerEntry)(nil),
		(*models.LedgerAllocation)(nil),
		(*models.MiscExpense)(nil),
		(*models.AgentPayment)(nil),
	} {
		n, err := db.NewSelect().Model(m).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	// Running it twice is harmless.
	require.NoError(t, CreateSchema(ctx, db))
}
